package language

import "testing"

func TestLookupByCodeAndName(t *testing.T) {
	l, ok := Lookup("es-es")
	if !ok || l.Name != "Español" {
		t.Fatalf("expected Español, got %+v (ok=%v)", l, ok)
	}
	l, ok = Lookup("català")
	if !ok || l.Code != "ca-ES" {
		t.Fatalf("expected ca-ES, got %+v (ok=%v)", l, ok)
	}
	if _, ok := Lookup("fr-FR"); ok {
		t.Fatal("expected fr-FR to be unsupported")
	}
}

func TestAllIsACopy(t *testing.T) {
	all := All()
	if len(all) != 3 {
		t.Fatalf("expected 3 languages, got %d", len(all))
	}
	all[0].Code = "xx"
	if Name("ca-ES") != "Català" {
		t.Fatal("mutating All() must not change the set")
	}
	if Name("xx-XX") != "xx-XX" {
		t.Fatal("unknown codes should be returned as-is")
	}
}
