package vectorindex

import "testing"

func TestSearch_FindsExactTextAsTopHit(t *testing.T) {
	ix := New()
	ix.Load([]Doc{
		{ID: "1", Text: "Шевченко Тарас"},
		{ID: "2", Text: "Петренко Олена"},
	})
	hits := ix.Search("Шевченко Тарас", 2)
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].DocID != "1" {
		t.Errorf("expected doc 1 to rank first, got %q", hits[0].DocID)
	}
	if hits[0].Confidence < 0.40 || hits[0].Confidence > 0.90 {
		t.Errorf("confidence %f out of spec range [0.40, 0.90]", hits[0].Confidence)
	}
}

func TestSearch_MultiWordMatchGetsAliasReasonCode(t *testing.T) {
	ix := New()
	ix.Load([]Doc{{ID: "1", Text: "Шевченко Тарас"}})
	hits := ix.Search("Шевченко Тарас", 1)
	if len(hits) == 0 || hits[0].ReasonCode != "RC_ALIAS" {
		t.Errorf("expected RC_ALIAS for multi-word match, got %+v", hits)
	}
}

func TestSearch_SingleWordMatchGetsTypoReasonCode(t *testing.T) {
	ix := New()
	ix.Load([]Doc{{ID: "1", Text: "Шевченко"}})
	hits := ix.Search("Шевченко", 1)
	if len(hits) == 0 || hits[0].ReasonCode != "RC_TYPO" {
		t.Errorf("expected RC_TYPO for single-word match, got %+v", hits)
	}
}

func TestSearch_RespectsK(t *testing.T) {
	ix := New()
	ix.Load([]Doc{
		{ID: "1", Text: "Шевченко Тарас"},
		{ID: "2", Text: "Шевченко Олена"},
		{ID: "3", Text: "Шевченко Василь"},
	})
	hits := ix.Search("Шевченко", 2)
	if len(hits) > 2 {
		t.Errorf("expected at most 2 hits, got %d", len(hits))
	}
}

func TestOverlay_AddsWithoutDiscardingExisting(t *testing.T) {
	ix := New()
	ix.Load([]Doc{{ID: "1", Text: "Шевченко Тарас"}})
	ix.Overlay([]Doc{{ID: "2", Text: "Петренко Олена"}})

	hits1 := ix.Search("Шевченко Тарас", 1)
	hits2 := ix.Search("Петренко Олена", 1)
	if len(hits1) == 0 || hits1[0].DocID != "1" {
		t.Error("expected original doc 1 to remain searchable after overlay")
	}
	if len(hits2) == 0 || hits2[0].DocID != "2" {
		t.Error("expected overlaid doc 2 to be searchable")
	}
}

func TestLoad_AtomicReplaceDropsPreviousDocs(t *testing.T) {
	ix := New()
	ix.Load([]Doc{{ID: "1", Text: "Шевченко Тарас"}})
	ix.Load([]Doc{{ID: "2", Text: "Петренко Олена"}})

	hits := ix.Search("Шевченко Тарас", 5)
	for _, h := range hits {
		if h.DocID == "1" {
			t.Error("expected doc 1 to be gone after atomic-replace Load")
		}
	}
}

func TestEphemeralIndex_SearchesAdHocPool(t *testing.T) {
	ix := EphemeralIndex([]Doc{{ID: "tier1-pattern", Text: "Шевченко Тарас Григорович"}})
	hits := ix.Search("Шевченко Тарас Григорович", 1)
	if len(hits) == 0 {
		t.Error("expected a hit against the ephemeral ad-hoc pool")
	}
}

func TestSearch_NoMatchReturnsNoHits(t *testing.T) {
	ix := New()
	ix.Load([]Doc{{ID: "1", Text: "Шевченко Тарас"}})
	hits := ix.Search("zzz unrelated text qqq", 5)
	if len(hits) != 0 {
		t.Errorf("expected no hits for unrelated text, got %d", len(hits))
	}
}

func TestSearch_EmptyIndexReturnsNoHits(t *testing.T) {
	ix := New()
	hits := ix.Search("anything", 5)
	if len(hits) != 0 {
		t.Errorf("expected no hits from an empty index, got %d", len(hits))
	}
}
