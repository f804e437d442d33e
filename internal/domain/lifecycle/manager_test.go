package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/noderank/internal/adapters/artifact"
	"github.com/okian/noderank/internal/adapters/mlp"
	"github.com/okian/noderank/internal/adapters/repository"
	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/lifecycle"
	"github.com/okian/noderank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func label(v float64) *float64 { return &v }

var sample = []model.FeatureRecord{{Age: 5, Depth: 2, NoiseLevel: 0.4, NodeType: 1, Label: label(0.9)}}

func dataset() []model.FeatureRecord {
	out := make([]model.FeatureRecord, 0, 40)
	for i := 0; i < 40; i++ {
		l := 0.1
		if i%3 == 0 {
			l = 0.9
		}
		out = append(out, model.FeatureRecord{Age: int64(i), Depth: int64(i % 5), NoiseLevel: float64(i%7) / 7, NodeType: int64(i % 3), Label: label(l)})
	}
	return out
}

type fixture struct {
	fs        afero.Fs
	records   *repository.MemoryStore
	artifacts *artifact.Store
	factory   *mlp.Factory
	mgr       *lifecycle.Manager
}

func newFixture(opts ...lifecycle.Option) *fixture {
	f := &fixture{
		fs:      afero.NewMemMapFs(),
		records: repository.NewMemoryStore(),
		factory: mlp.NewFactory(mlp.WithSeed(42)),
	}
	f.artifacts = artifact.NewStore("trained", artifact.WithFs(f.fs))
	opts = append([]lifecycle.Option{lifecycle.WithSeed(1)}, opts...)
	f.mgr = lifecycle.New(f.records, f.artifacts, f.factory, opts...)
	return f
}

func (f *fixture) artifactBytes(t *testing.T, id string) []byte {
	t.Helper()
	rc, _, err := f.mgr.FetchArtifact(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch artifact: %v", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	return b
}

// failingRecords fails Create and optionally UpdateStatus.
type failingRecords struct {
	*repository.MemoryStore
	failCreate bool
	failUpdate bool
}

func (s *failingRecords) Create(ctx context.Context, rec model.Record) error {
	if s.failCreate {
		return errors.New("db down")
	}
	return s.MemoryStore.Create(ctx, rec)
}

func (s *failingRecords) UpdateStatus(ctx context.Context, id string, st model.Status, at time.Time) (model.Record, error) {
	if s.failUpdate {
		return model.Record{}, errors.New("db down")
	}
	return s.MemoryStore.UpdateStatus(ctx, id, st, at)
}

// stickyArtifacts refuses to remove directories.
type stickyArtifacts struct {
	*artifact.Store
}

func (stickyArtifacts) Remove(context.Context, string) error {
	return errors.New("permission denied")
}

func TestCreate(t *testing.T) {
	Convey("Given a manager", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("When a model is created", func() {
			rec, err := f.mgr.Create(ctx, lifecycle.CreateInput{Name: "M1"})
			So(err, ShouldBeNil)

			Convey("Then it is not-trained with a loadable artifact", func() {
				So(rec.Status, ShouldEqual, model.StatusNotTrained)
				So(rec.ArtifactLocation, ShouldEqual, "trained/"+rec.ID)
				So(rec.BackupLocation, ShouldBeNil)
				p, err := f.factory.Load(bytes.NewReader(f.artifactBytes(t, rec.ID)))
				So(err, ShouldBeNil)
				So(p.Topology(), ShouldResemble, lifecycle.DefaultTopology())
			})

			Convey("Then it is listed and readable", func() {
				got, err := f.mgr.Get(ctx, rec.ID)
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "M1")
				all, err := f.mgr.List(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 1)
			})
		})

		Convey("When the name is blank", func() {
			_, err := f.mgr.Create(ctx, lifecycle.CreateInput{Name: "  "})

			Convey("Then it is a validation error and nothing is stored", func() {
				So(errkind.Is(err, errkind.ErrValidation), ShouldBeTrue)
				all, _ := f.mgr.List(ctx)
				So(all, ShouldBeEmpty)
				exists, _ := afero.DirExists(f.fs, "trained")
				So(exists, ShouldBeFalse)
			})
		})

		Convey("When the record write fails", func() {
			records := &failingRecords{MemoryStore: repository.NewMemoryStore(), failCreate: true}
			mgr := lifecycle.New(records, f.artifacts, f.factory, lifecycle.WithIDGenerator(func() string {
				return "0f8fad5b-d9cb-469f-a165-70867728950e"
			}))
			_, err := mgr.Create(ctx, lifecycle.CreateInput{Name: "M1"})

			Convey("Then it is a persistence error and the artifact is removed", func() {
				So(errkind.Is(err, errkind.ErrPersistence), ShouldBeTrue)
				exists, _ := afero.DirExists(f.fs, "trained/0f8fad5b-d9cb-469f-a165-70867728950e")
				So(exists, ShouldBeFalse)
			})
		})
	})
}

func TestTrainIncrementally(t *testing.T) {
	Convey("Given a created model", t, func() {
		ctx := context.Background()
		f := newFixture()
		rec, err := f.mgr.Create(ctx, lifecycle.CreateInput{Name: "M1"})
		So(err, ShouldBeNil)
		bootstrap := f.artifactBytes(t, rec.ID)

		Convey("When it is trained on one labeled record", func() {
			res, err := f.mgr.TrainIncrementally(ctx, rec.ID, sample)

			Convey("Then status moves from not-trained to trained", func() {
				So(err, ShouldBeNil)
				So(res.Record.Status, ShouldEqual, model.StatusTrained)
				So(res.Rows, ShouldEqual, 1)
				got, _ := f.mgr.Get(ctx, rec.ID)
				So(got.Status, ShouldEqual, model.StatusTrained)
				So(got.ArtifactLocation, ShouldEqual, rec.ArtifactLocation)
				So(string(f.artifactBytes(t, rec.ID)), ShouldNotEqual, string(bootstrap))
			})
		})

		Convey("When it is trained twice", func() {
			_, err := f.mgr.TrainIncrementally(ctx, rec.ID, dataset())
			So(err, ShouldBeNil)
			first := f.artifactBytes(t, rec.ID)
			res, err := f.mgr.TrainIncrementally(ctx, rec.ID, dataset())
			So(err, ShouldBeNil)

			Convey("Then it stays trained and the weights keep moving", func() {
				So(res.Record.Status, ShouldEqual, model.StatusTrained)
				So(string(f.artifactBytes(t, rec.ID)), ShouldNotEqual, string(first))
			})
		})

		Convey("When a record has no label", func() {
			_, err := f.mgr.TrainIncrementally(ctx, rec.ID, []model.FeatureRecord{{Age: 1}})

			Convey("Then it is a validation error and nothing changes", func() {
				So(errkind.Is(err, errkind.ErrValidation), ShouldBeTrue)
				So(f.artifactBytes(t, rec.ID), ShouldResemble, bootstrap)
				got, _ := f.mgr.Get(ctx, rec.ID)
				So(got.Status, ShouldEqual, model.StatusNotTrained)
			})
		})

		Convey("When the dataset exceeds the configured cap", func() {
			capped := lifecycle.New(f.records, f.artifacts, f.factory, lifecycle.WithMaxDatasetSize(3))
			_, err := capped.TrainIncrementally(ctx, rec.ID, dataset())
			So(errkind.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("When fitting times out", func() {
			slow := lifecycle.New(f.records, f.artifacts, f.factory, lifecycle.WithTrainTimeout(time.Nanosecond))
			_, err := slow.TrainIncrementally(ctx, rec.ID, dataset())

			Convey("Then it is a training error and the record is untouched", func() {
				So(errkind.Is(err, errkind.ErrTraining), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				got, _ := f.mgr.Get(ctx, rec.ID)
				So(got.Status, ShouldEqual, model.StatusNotTrained)
				So(f.artifactBytes(t, rec.ID), ShouldResemble, bootstrap)
			})
		})

		Convey("When the artifact is corrupt", func() {
			So(afero.WriteFile(f.fs, "trained/"+rec.ID+"/model.json", []byte("{"), 0o644), ShouldBeNil)
			_, err := f.mgr.TrainIncrementally(ctx, rec.ID, sample)
			So(errkind.Is(err, errkind.ErrTraining), ShouldBeTrue)
		})

		Convey("When the status update fails after save", func() {
			records := &failingRecords{MemoryStore: f.records, failUpdate: true}
			mgr := lifecycle.New(records, f.artifacts, f.factory)
			_, err := mgr.TrainIncrementally(ctx, rec.ID, sample)
			So(errkind.Is(err, errkind.ErrPersistence), ShouldBeTrue)
		})

		Convey("When trains for the same id run concurrently", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 5)
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.mgr.TrainIncrementally(ctx, rec.ID, dataset())
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then every call succeeds and the artifact stays loadable", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				_, err := f.factory.Load(bytes.NewReader(f.artifactBytes(t, rec.ID)))
				So(err, ShouldBeNil)
			})
		})
	})

	Convey("Given no model", t, func() {
		ctx := context.Background()
		f := newFixture()
		const missing = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

		Convey("When training an unknown id", func() {
			_, err := f.mgr.TrainIncrementally(ctx, missing, sample)

			Convey("Then it is not found and no artifact is created", func() {
				So(errkind.Is(err, errkind.ErrNotFound), ShouldBeTrue)
				exists, _ := afero.DirExists(f.fs, "trained/"+missing)
				So(exists, ShouldBeFalse)
			})
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("Given a created model", t, func() {
		ctx := context.Background()
		f := newFixture()
		rec, err := f.mgr.Create(ctx, lifecycle.CreateInput{Name: "M1"})
		So(err, ShouldBeNil)

		Convey("When it is deleted", func() {
			res, err := f.mgr.Delete(ctx, rec.ID)

			Convey("Then record and artifact are gone", func() {
				So(err, ShouldBeNil)
				So(res.ArtifactRemoved, ShouldBeTrue)
				_, err := f.mgr.Get(ctx, rec.ID)
				So(errkind.Is(err, errkind.ErrNotFound), ShouldBeTrue)
				exists, _ := afero.DirExists(f.fs, rec.ArtifactLocation)
				So(exists, ShouldBeFalse)
			})

			Convey("Then deleting again is not found", func() {
				_, err := f.mgr.Delete(ctx, rec.ID)
				So(errkind.Is(err, errkind.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the artifact directory is already gone", func() {
			So(f.fs.RemoveAll(rec.ArtifactLocation), ShouldBeNil)
			res, err := f.mgr.Delete(ctx, rec.ID)

			Convey("Then delete still succeeds", func() {
				So(err, ShouldBeNil)
				So(res.ArtifactRemoved, ShouldBeTrue)
			})
		})

		Convey("When the artifact cannot be removed", func() {
			mgr := lifecycle.New(f.records, stickyArtifacts{f.artifacts}, f.factory)
			res, err := mgr.Delete(ctx, rec.ID)

			Convey("Then the record is removed and the failure reported", func() {
				So(err, ShouldBeNil)
				So(res.ArtifactRemoved, ShouldBeFalse)
				_, err := f.mgr.Get(ctx, rec.ID)
				So(errkind.Is(err, errkind.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestFetchArtifact(t *testing.T) {
	Convey("Given a manager", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("When the id is unknown", func() {
			_, _, err := f.mgr.FetchArtifact(ctx, "7c9e6679-7425-40de-944b-e07fc1f90ae7")
			So(errkind.Is(err, errkind.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the record exists but the file is missing", func() {
			rec, err := f.mgr.Create(ctx, lifecycle.CreateInput{Name: "M1"})
			So(err, ShouldBeNil)
			So(f.fs.RemoveAll(rec.ArtifactLocation), ShouldBeNil)
			_, _, err = f.mgr.FetchArtifact(ctx, rec.ID)
			So(errkind.Is(err, errkind.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the artifact exists", func() {
			rec, err := f.mgr.Create(ctx, lifecycle.CreateInput{Name: "M1"})
			So(err, ShouldBeNil)
			rc, size, err := f.mgr.FetchArtifact(ctx, rec.ID)
			So(err, ShouldBeNil)
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			So(int64(len(b)), ShouldEqual, size)
		})
	})
}
