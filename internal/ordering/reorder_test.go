package ordering

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"course-agenda-server/internal/domain"
)

func seqOf(ids ...string) []domain.OrderedItem {
	out := make([]domain.OrderedItem, len(ids))
	for i, id := range ids {
		out[i] = domain.OrderedItem{ID: id, ParentID: "course-1", Kind: domain.OrderedKindModule, Order: i + 1}
	}
	return out
}

func idsOf(seq []domain.OrderedItem) []string {
	out := make([]string, len(seq))
	for i, it := range seq {
		out[i] = it.ID
	}
	return out
}

func intPtr(i int) *int { return &i }

func TestComputeReorder(t *testing.T) {
	tests := []struct {
		name   string
		source int
		target int
		want   []string
	}{
		{name: "first to end", source: 0, target: 4, want: []string{"B", "C", "D", "A"}},
		{name: "last to front", source: 3, target: 0, want: []string{"D", "A", "B", "C"}},
		{name: "forward past one", source: 0, target: 2, want: []string{"B", "A", "C", "D"}},
		{name: "backward one", source: 2, target: 1, want: []string{"A", "C", "B", "D"}},
		{name: "middle to end", source: 1, target: 4, want: []string{"A", "C", "D", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := seqOf("A", "B", "C", "D")
			got, err := ComputeReorder(in, tt.source, tt.target)
			if err != nil {
				t.Fatalf("ComputeReorder() error = %v", err)
			}
			if !reflect.DeepEqual(idsOf(got), tt.want) {
				t.Errorf("ComputeReorder() = %v, want %v", idsOf(got), tt.want)
			}
			if !IsDense(got) {
				t.Errorf("ComputeReorder() result not dense: %+v", got)
			}
			if !reflect.DeepEqual(in, seqOf("A", "B", "C", "D")) {
				t.Error("ComputeReorder() mutated its input")
			}
		})
	}
}

func TestComputeReorder_NoopMoves(t *testing.T) {
	in := seqOf("A", "B", "C")
	for i := range in {
		for _, target := range []int{i, i + 1} {
			got, err := ComputeReorder(in, i, target)
			if err != nil {
				t.Fatalf("ComputeReorder(%d, %d) error = %v", i, target, err)
			}
			if !reflect.DeepEqual(got, in) {
				t.Errorf("ComputeReorder(%d, %d) = %v, want input unchanged", i, target, idsOf(got))
			}
		}
	}
}

func TestComputeReorder_InvalidIndex(t *testing.T) {
	in := seqOf("A", "B")
	cases := [][2]int{{-1, 0}, {2, 0}, {0, 3}, {0, -1}}
	for _, c := range cases {
		if _, err := ComputeReorder(in, c[0], c[1]); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("ComputeReorder(%d, %d) error = %v, want ErrInvalidIndex", c[0], c[1], err)
		}
	}
	if _, err := ComputeReorder(nil, 0, 0); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("ComputeReorder(empty) error = %v, want ErrInvalidIndex", err)
	}
}

func TestComputeReorder_DensityForAllMoves(t *testing.T) {
	for n := 1; n <= 6; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("item-%d", i)
		}
		in := seqOf(ids...)
		// Stored order values with gaps and duplicates must not leak through.
		for i := range in {
			in[i].Order = (i / 2) * 10
		}
		for s := 0; s < n; s++ {
			for tgt := 0; tgt <= n; tgt++ {
				got, err := ComputeReorder(in, s, tgt)
				if err != nil {
					t.Fatalf("n=%d ComputeReorder(%d, %d) error = %v", n, s, tgt, err)
				}
				if IsNoop(s, tgt) {
					continue
				}
				if !IsDense(got) || len(got) != n {
					t.Errorf("n=%d ComputeReorder(%d, %d) not dense: %+v", n, s, tgt, got)
				}
			}
		}
	}
}

func TestComputeReorder_RoundTrip(t *testing.T) {
	in := seqOf("A", "B", "C", "D", "E")
	for i := 0; i < len(in); i++ {
		for j := 0; j <= len(in); j++ {
			if IsNoop(i, j) {
				continue
			}
			moved, err := ComputeReorder(in, i, j)
			if err != nil {
				t.Fatalf("ComputeReorder(%d, %d) error = %v", i, j, err)
			}
			pos := IndexOf(moved, in[i].ID)
			back := i
			if pos < i {
				back = i + 1
			}
			restored, err := ComputeReorder(moved, pos, back)
			if err != nil {
				t.Fatalf("ComputeReorder back (%d, %d) error = %v", pos, back, err)
			}
			if !reflect.DeepEqual(idsOf(restored), idsOf(in)) {
				t.Errorf("round trip %d->%d = %v, want %v", i, j, idsOf(restored), idsOf(in))
			}
		}
	}
}

func TestDropTarget_Index(t *testing.T) {
	tests := []struct {
		name    string
		target  DropTarget
		n       int
		want    int
		wantErr error
	}{
		{name: "before first", target: DropTarget{BeforeIndex: intPtr(0)}, n: 3, want: 0},
		{name: "before interior", target: DropTarget{BeforeIndex: intPtr(2)}, n: 3, want: 2},
		{name: "at end", target: DropTarget{AtEnd: true}, n: 3, want: 3},
		{name: "at end wins over index", target: DropTarget{BeforeIndex: intPtr(1), AtEnd: true}, n: 3, want: 3},
		{name: "missing", target: DropTarget{}, n: 3, wantErr: ErrNoDropTarget},
		{name: "past end", target: DropTarget{BeforeIndex: intPtr(4)}, n: 3, wantErr: ErrInvalidIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.target.Index(tt.n)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Index() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Index() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Index() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDensify(t *testing.T) {
	in := []domain.OrderedItem{
		{ID: "c", Order: 7},
		{ID: "a", Order: 2},
		{ID: "b", Order: 2},
		{ID: "d", Order: 0},
	}
	got := Densify(in)
	if want := []string{"d", "a", "b", "c"}; !reflect.DeepEqual(idsOf(got), want) {
		t.Errorf("Densify() = %v, want %v", idsOf(got), want)
	}
	if !IsDense(got) {
		t.Errorf("Densify() not dense: %+v", got)
	}
	if in[0].Order != 7 {
		t.Error("Densify() mutated its input")
	}
}

func TestRemoveAndAppend(t *testing.T) {
	in := seqOf("A", "B", "C")

	removed, err := Remove(in, 1)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !reflect.DeepEqual(idsOf(removed), []string{"A", "C"}) || !IsDense(removed) {
		t.Errorf("Remove() = %+v", removed)
	}
	if _, err := Remove(in, 3); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Remove(3) error = %v, want ErrInvalidIndex", err)
	}

	appended := Append(removed, domain.OrderedItem{ID: "Z"})
	if appended[2].ID != "Z" || appended[2].Order != 3 {
		t.Errorf("Append() = %+v", appended)
	}
	if len(removed) != 2 {
		t.Error("Append() mutated its input")
	}
}

func TestChanged(t *testing.T) {
	prev := seqOf("A", "B", "C", "D")
	next, _ := ComputeReorder(prev, 1, 3)
	changed := Changed(prev, next)
	if got := idsOf(changed); !reflect.DeepEqual(got, []string{"C", "B"}) {
		t.Errorf("Changed() = %v, want [C B]", got)
	}
}
