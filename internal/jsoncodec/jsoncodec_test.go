package jsoncodec

import "testing"

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument(`{"a":{"b":"x","n":null,"num":3},"list":[{"id":"1"},2]}`)
	if err != nil {
		t.Fatal(err)
	}

	if s, ok := doc.String("a", "b"); !ok || s != "x" {
		t.Fatalf("a.b = %q, %v", s, ok)
	}
	if _, ok := doc.Lookup("a", "n"); ok {
		t.Fatal("null must be reported as missing")
	}
	if _, ok := doc.String("a", "num"); ok {
		t.Fatal("number must not be returned as a string")
	}
	if _, ok := doc.Lookup("a", "b", "c"); ok {
		t.Fatal("walking through a string must fail")
	}
	if _, ok := doc.Lookup("missing"); ok {
		t.Fatal("missing key must fail")
	}

	items, ok := doc.Objects("list")
	if !ok || len(items) != 2 {
		t.Fatalf("list = %v, %v", items, ok)
	}
	if id, _ := items[0].String("id"); id != "1" {
		t.Fatalf("list[0].id = %q", id)
	}
	if items[1] != nil {
		t.Fatal("non-object item must be nil")
	}
}

func TestParseDocument_NotObject(t *testing.T) {
	for _, in := range []string{`null`, `[]`, `"s"`, `1`, ``, `{`} {
		if _, err := ParseDocument(in); err == nil {
			t.Errorf("ParseDocument(%q): expected error", in)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"a":1}`)) || !Valid([]byte(`[1,2]`)) {
		t.Fatal("expected valid JSON")
	}
	if Valid([]byte(`{"a":`)) || Valid(nil) {
		t.Fatal("expected invalid JSON")
	}
}
