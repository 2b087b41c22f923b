package cmd

import (
	"strings"
	"testing"

	"github.com/eslsoft/spacedrep/internal/entity"
)

func Test_parseContentCSV(t *testing.T) {
	in := "id,difficulty\n" +
		"verb-run, 3\n" +
		"# comment\n" +
		"noun-table,7.5\n" +
		"adj-blue\n" +
		"adv-fast,\n"
	items, err := parseContentCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items got %d", len(items))
	}
	if items[0].ID != "verb-run" || items[0].Difficulty != 3 {
		t.Fatalf("bad first: %+v", items[0])
	}
	if items[1].ID != "noun-table" || items[1].Difficulty != 7.5 {
		t.Fatalf("bad second: %+v", items[1])
	}
	if items[2].Difficulty != entity.DefaultDifficulty || items[3].Difficulty != entity.DefaultDifficulty {
		t.Fatalf("missing difficulty must default: %+v %+v", items[2], items[3])
	}
}

func Test_parseContentCSV_errors(t *testing.T) {
	cases := []string{
		"c1,11\n",
		"c1,0.5\n",
		"c1,hard\n",
		" ,3\n",
	}
	for _, in := range cases {
		if _, err := parseContentCSV(strings.NewReader(in)); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}
