package encoding_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/okian/noderank/internal/domain/encoding"
	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func label(v float64) *float64 { return &v }

func TestDecodeRecords(t *testing.T) {
	Convey("Given raw request bodies", t, func() {
		Convey("When the body is an array of objects", func() {
			raw, err := encoding.DecodeRecordsBytes([]byte(`[{"age":5,"depth":2,"noiseLevel":0.4,"nodeType":1,"label":0.9}]`))

			Convey("Then it decodes", func() {
				So(err, ShouldBeNil)
				So(raw, ShouldHaveLength, 1)
			})
		})

		Convey("When the body is an object", func() {
			_, err := encoding.DecodeRecordsBytes([]byte(`{"age":5}`))

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the array holds scalars", func() {
			_, err := encoding.DecodeRecordsBytes([]byte(`[1,2,3]`))

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When trailing data follows the array", func() {
			_, err := encoding.DecodeRecords(strings.NewReader(`[] []`))

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
			})
		})
	})
}

func TestParseRecords(t *testing.T) {
	Convey("Given input objects", t, func() {
		Convey("When field order is permuted", func() {
			a, errA := encoding.DecodeRecordsBytes([]byte(`[{"age":5,"depth":2,"noiseLevel":0.4,"nodeType":1}]`))
			b, errB := encoding.DecodeRecordsBytes([]byte(`[{"nodeType":1,"noiseLevel":0.4,"depth":2,"age":5}]`))
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)

			ra, errA := encoding.ParseRecords(a)
			rb, errB := encoding.ParseRecords(b)

			Convey("Then the encoded vectors are identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(mat.Equal(encoding.Features(ra), encoding.Features(rb)), ShouldBeTrue)
				So(encoding.Features(ra).RawRowView(0), ShouldResemble, []float64{5, 2, 0.4, 1})
			})
		})

		Convey("When a label is present", func() {
			recs, err := encoding.ParseRecords([]map[string]any{
				{"age": 1, "depth": 0, "noiseLevel": 0.1, "nodeType": 0, "label": 0.5},
				{"age": 2, "depth": 1, "noiseLevel": 0.2, "nodeType": 1, "label": nil},
			})

			Convey("Then it is parsed and a null label counts as absent", func() {
				So(err, ShouldBeNil)
				So(*recs[0].Label, ShouldEqual, 0.5)
				So(recs[1].Label, ShouldBeNil)
			})
		})

		Convey("When integral floats are given for integer fields", func() {
			recs, err := encoding.ParseRecords([]map[string]any{
				{"age": 5.0, "depth": 2.0, "noiseLevel": 1, "nodeType": 1.0},
			})

			Convey("Then they are accepted", func() {
				So(err, ShouldBeNil)
				So(recs[0].Age, ShouldEqual, 5)
				So(recs[0].NoiseLevel, ShouldEqual, 1.0)
			})
		})

		cases := []struct {
			name string
			obj  map[string]any
		}{
			{"a field is missing", map[string]any{"age": 5, "depth": 2, "noiseLevel": 0.4}},
			{"a field is a string", map[string]any{"age": "5", "depth": 2, "noiseLevel": 0.4, "nodeType": 1}},
			{"age is negative", map[string]any{"age": -1, "depth": 2, "noiseLevel": 0.4, "nodeType": 1}},
			{"depth is fractional", map[string]any{"age": 1, "depth": 2.5, "noiseLevel": 0.4, "nodeType": 1}},
			{"noiseLevel is not finite", map[string]any{"age": 1, "depth": 2, "noiseLevel": math.Inf(1), "nodeType": 1}},
			{"label is not numeric", map[string]any{"age": 1, "depth": 2, "noiseLevel": 0.4, "nodeType": 1, "label": true}},
			{"the record is nil", nil},
		}
		for _, tc := range cases {
			tc := tc
			Convey("When "+tc.name, func() {
				_, err := encoding.ParseRecords([]map[string]any{tc.obj})

				Convey("Then it is an encoding error", func() {
					So(errors.Is(err, errkind.ErrEncoding), ShouldBeTrue)
					So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
				})
			})
		}
	})
}

func TestValidation(t *testing.T) {
	Convey("Given the validators", t, func() {
		labeled := []model.FeatureRecord{{Age: 5, Depth: 2, NoiseLevel: 0.4, NodeType: 1, Label: label(0.9)}}

		Convey("ValidateName rejects blank and oversized names", func() {
			So(encoding.ValidateName("M1"), ShouldBeNil)
			So(errors.Is(encoding.ValidateName(""), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateName("   "), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateName(strings.Repeat("x", 256)), errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("ValidateDataset requires labeled, non-empty, bounded data", func() {
			So(encoding.ValidateDataset(labeled, 0), ShouldBeNil)
			So(errors.Is(encoding.ValidateDataset(nil, 0), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateDataset([]model.FeatureRecord{{Age: 1}}, 0), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateDataset(append(labeled, labeled...), 1), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateDataset([]model.FeatureRecord{{Label: label(math.NaN())}}, 0), errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("IsInteger accepts whole numbers in either JSON form", func() {
			So(encoding.IsInteger(2), ShouldBeTrue)
			So(encoding.IsInteger(2.0), ShouldBeTrue)
			So(encoding.IsInteger(-3), ShouldBeTrue)
			So(encoding.IsInteger(1.5), ShouldBeFalse)
			So(encoding.IsInteger(math.Inf(1)), ShouldBeFalse)
			So(encoding.IsInteger(math.NaN()), ShouldBeFalse)
			So(encoding.IsInteger(1<<60), ShouldBeFalse)
		})

		Convey("ValidateCandidateBatch bounds topK", func() {
			three := make([]model.FeatureRecord, 3)
			So(encoding.ValidateCandidateBatch(three, 1, 0), ShouldBeNil)
			So(encoding.ValidateCandidateBatch(three, 3, 0), ShouldBeNil)
			So(errors.Is(encoding.ValidateCandidateBatch(three, 0, 0), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateCandidateBatch(three, -2, 0), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateCandidateBatch(three, 4, 0), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateCandidateBatch(nil, 1, 0), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(encoding.ValidateCandidateBatch(three, 1, 2), errkind.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestEncode(t *testing.T) {
	Convey("Given labeled records", t, func() {
		recs := []model.FeatureRecord{
			{Age: 5, Depth: 2, NoiseLevel: 0.4, NodeType: 1, Label: label(0.9)},
			{Age: 7, Depth: 0, NoiseLevel: 0.1, NodeType: 0, Label: label(0.2)},
		}

		Convey("Then Features keeps input order", func() {
			x := encoding.Features(recs)
			r, c := x.Dims()
			So(r, ShouldEqual, 2)
			So(c, ShouldEqual, model.FeatureCount)
			So(x.RawRowView(1), ShouldResemble, []float64{7, 0, 0.1, 0})
		})

		Convey("Then Labels returns the targets", func() {
			y, err := encoding.Labels(recs)
			So(err, ShouldBeNil)
			So(y.RawVector().Data, ShouldResemble, []float64{0.9, 0.2})
		})

		Convey("Then Labels fails on an unlabeled record", func() {
			recs[1].Label = nil
			_, err := encoding.Labels(recs)
			So(errors.Is(err, errkind.ErrEncoding), ShouldBeTrue)
		})

		Convey("Then empty input is handled", func() {
			So(encoding.Features(nil), ShouldBeNil)
			_, err := encoding.Labels(nil)
			So(err, ShouldNotBeNil)
		})
	})
}
