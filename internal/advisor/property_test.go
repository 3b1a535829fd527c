package advisor

import (
	"math/big"
	"reflect"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	return gopter.NewProperties(parameters)
}

func uintWidth(lo, hi uint64) (int, bool) {
	p := ColumnProfile{
		Name:         "n",
		ObservedMin:  new(big.Int).SetUint64(lo),
		ObservedMax:  new(big.Int).SetUint64(hi),
		RowCount:     1,
		SemanticRole: RoleMetric,
		ValueKind:    KindUnsignedInteger,
	}
	got, err := ClassifyType(p, ColumnHints{})
	if err != nil {
		return 0, false
	}
	return got.Type.Width, true
}

func TestProperty_UnsignedWidthIsMinimal(t *testing.T) {
	properties := newProperties()

	properties.Property("chosen width holds max and the next narrower width does not", prop.ForAll(
		func(a, b uint64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			w, ok := uintWidth(lo, hi)
			if !ok {
				return false
			}
			if w < 64 && hi > (uint64(1)<<uint(w))-1 {
				return false
			}
			if w > 8 && hi <= (uint64(1)<<uint(w/2))-1 {
				return false
			}
			return true
		},
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.Property("width never decreases as max grows", prop.ForAll(
		func(lo, delta, step uint64) bool {
			hi := lo + delta%(1<<40)
			w1, ok1 := uintWidth(lo, hi)
			w2, ok2 := uintWidth(lo, hi+step%(1<<40))
			return ok1 && ok2 && w1 <= w2
		},
		gen.UInt64Range(0, 1<<62),
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestProperty_SignedWidthFits(t *testing.T) {
	properties := newProperties()

	properties.Property("signed range fits the chosen width", prop.ForAll(
		func(a, b int64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			p := ColumnProfile{
				Name:         "n",
				ObservedMin:  big.NewInt(lo),
				ObservedMax:  big.NewInt(hi),
				RowCount:     1,
				SemanticRole: RoleMetric,
				ValueKind:    KindInteger,
			}
			got, err := ClassifyType(p, ColumnHints{})
			if err != nil {
				return false
			}
			w := uint(got.Type.Width)
			if w == 64 {
				return true
			}
			limit := int64(1) << (w - 1)
			return lo >= -limit && hi <= limit-1
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_NoDictionaryForHighCardinalityRatio(t *testing.T) {
	properties := newProperties()

	properties.Property("no dictionary when distinct >= 10k and ratio > 0.2", prop.ForAll(
		func(distinct, extra int64, stable bool) bool {
			// rows < 5 * distinct keeps the ratio above 0.2.
			rows := distinct + extra%(4*distinct)
			dec, err := DecideEncoding(ColumnProfile{
				Name:          "s",
				DistinctCount: distinct,
				RowCount:      rows,
				IsStableEnum:  stable,
				SemanticRole:  RoleDimension,
				ValueKind:     KindString,
			})
			return err == nil && dec.Encoding != EncodingDictionary
		},
		gen.Int64Range(10_000, 50_000_000),
		gen.Int64Range(0, 1<<40),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_KeyNeverNullable(t *testing.T) {
	properties := newProperties()

	properties.Property("key columns are never nullable", prop.ForAll(
		func(rows, nulls int64, kind int) bool {
			if rows > 0 {
				nulls %= rows + 1
			} else {
				nulls = 0
			}
			p := ColumnProfile{
				Name:         "k",
				RowCount:     rows,
				NullCount:    nulls,
				SemanticRole: RoleKey,
				ValueKind:    ValueKinds[kind],
			}
			dec, err := ResolveNullability(p, ColumnHints{})
			if err != nil {
				return false
			}
			if dec.Nullability == Nullable {
				return false
			}
			_, err = ResolveNullability(p, ColumnHints{RequestNullable: true})
			return err != nil && CodeOf(err) == CodeKeyCannotBeNullable
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.IntRange(0, len(ValueKinds)-1),
	))

	properties.TestingRun(t)
}

type plannerColumn struct {
	Kind     int
	Distinct int64
	Filter   bool
	GroupBy  bool
	Entropy  bool
	Nulls    int64
}

func genPlannerColumn() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, len(ValueKinds)-1),
		gen.Int64Range(0, 3_000_000),
		gen.Bool(),
		gen.Bool(),
		gen.Weighted([]gen.WeightedGen{
			{Weight: 9, Gen: gen.Const(false)},
			{Weight: 1, Gen: gen.Const(true)},
		}),
		gen.Weighted([]gen.WeightedGen{
			{Weight: 6, Gen: gen.Const(int64(0))},
			{Weight: 4, Gen: gen.Int64Range(0, 3_000_000)},
		}),
	).Map(func(v []interface{}) plannerColumn {
		return plannerColumn{
			Kind:     v[0].(int),
			Distinct: v[1].(int64),
			Filter:   v[2].(bool),
			GroupBy:  v[3].(bool),
			Entropy:  v[4].(bool),
			Nulls:    v[5].(int64),
		}
	})
}

func buildPlannerTable(cols []plannerColumn, appendOnly bool) TableInput {
	t := TableInput{Name: "t", AppendOnly: appendOnly}
	for i, c := range cols {
		t.Columns = append(t.Columns, ColumnInput{Profile: ColumnProfile{
			Name:          "c" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			DistinctCount: c.Distinct,
			RowCount:      3_000_000,
			NullCount:     c.Nulls,
			UsedInFilter:  c.Filter,
			UsedInGroupBy: c.GroupBy,
			HighEntropyID: c.Entropy,
			SemanticRole:  RoleDimension,
			ValueKind:     ValueKinds[c.Kind],
		}})
	}
	return t
}

func TestProperty_KeyPlanCoversColumns(t *testing.T) {
	properties := newProperties()

	properties.Property("ordered plus excluded is a partition of the input columns", prop.ForAll(
		func(cols []plannerColumn, appendOnly bool) bool {
			table := buildPlannerTable(cols, appendOnly)
			plan, err := PlanKeyOrdering(table)
			if len(cols) == 0 {
				return CodeOf(err) == CodeEmptySchema
			}
			if err != nil {
				return false
			}
			var got []string
			got = append(got, plan.Columns()...)
			for _, e := range plan.Excluded {
				if plan.Contains(e.Column) {
					return false
				}
				got = append(got, e.Column)
			}
			var want []string
			for _, c := range table.Columns {
				want = append(want, c.Profile.Name)
			}
			sort.Strings(got)
			sort.Strings(want)
			return reflect.DeepEqual(got, want)
		},
		gen.SliceOfN(40, genPlannerColumn()),
		gen.Bool(),
	))

	properties.Property("planning is deterministic", prop.ForAll(
		func(cols []plannerColumn, appendOnly bool) bool {
			table := buildPlannerTable(cols, appendOnly)
			first, err1 := PlanKeyOrdering(table)
			second, err2 := PlanKeyOrdering(table)
			return reflect.DeepEqual(first, second) && reflect.DeepEqual(err1, err2)
		},
		gen.SliceOf(genPlannerColumn()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_AdvisedKeyIsNotNull(t *testing.T) {
	properties := newProperties()

	properties.Property("every column is ordered or excluded and ordered columns are NOT NULL", prop.ForAll(
		func(cols []plannerColumn, appendOnly bool) bool {
			table := buildPlannerTable(cols, appendOnly)
			advice, err := New(Options{}).AdviseTable(table)
			if err != nil {
				return false
			}
			if len(cols) == 0 {
				return advice.KeyPlan == nil
			}
			if advice.KeyPlan == nil {
				return false
			}
			plan := advice.KeyPlan
			for _, name := range plan.Columns() {
				rec, ok := advice.Recommendation(name)
				if !ok || rec.Nullability.Nullability != NotNullWithDefault {
					return false
				}
			}
			got := plan.Columns()
			for _, e := range plan.Excluded {
				if plan.Contains(e.Column) || e.Reason == "" {
					return false
				}
				got = append(got, e.Column)
			}
			var want []string
			for _, c := range table.Columns {
				want = append(want, c.Profile.Name)
			}
			sort.Strings(got)
			sort.Strings(want)
			return reflect.DeepEqual(got, want)
		},
		gen.SliceOfN(40, genPlannerColumn()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
