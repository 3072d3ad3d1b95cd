package models

import (
	"testing"
)

func TestUsedPages(t *testing.T) {
	tests := []struct {
		name string
		hits []RetrievalHit
		want []int
	}{
		{"empty", nil, []int{}},
		{"nil pages skipped", []RetrievalHit{{Text: "a"}, {Text: "b", Page: PageNumber(2)}}, []int{2}},
		{"sorted unique", []RetrievalHit{
			{Page: PageNumber(3)}, {Page: PageNumber(1)}, {Page: PageNumber(3)}, {Page: PageNumber(2)},
		}, []int{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UsedPages(tt.hits)
			if len(got) != len(tt.want) {
				t.Fatalf("UsedPages() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("UsedPages()[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDocument_Pages(t *testing.T) {
	d := &Document{PageCount: 3}
	pages := d.Pages()
	if len(pages) != 3 || pages[0] != 1 || pages[2] != 3 {
		t.Errorf("Pages() = %v", pages)
	}
	if len((&Document{}).Pages()) != 0 {
		t.Error("zero pages should yield empty list")
	}
}
