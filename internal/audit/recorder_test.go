package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"

	"medorder/internal/audit"
	"medorder/internal/audit/metrics"
	"medorder/internal/audit/mocks"
	dErrors "medorder/pkg/domain-errors"
	"medorder/pkg/requestcontext"
)

// =============================================================================
// Recorder Test Suite
// =============================================================================
// Justification for unit tests: the recorder's contract is the distinction
// between recorded, no_change and write_failed outcomes, which the HTTP layer
// only sees as status codes.

type RecorderSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	metrics   *metrics.Metrics
	recorder  *audit.Recorder
	now       time.Time
	ctx       context.Context
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.recorder, err = audit.New(s.mockStore,
		audit.WithLogger(logger),
		audit.WithMetrics(s.metrics),
		audit.WithTracer(noop.NewTracerProvider().Tracer("test")),
	)
	s.Require().NoError(err)
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *RecorderSuite) TearDownTest() {
	s.ctrl.Finish()
}

func snapshot(kv ...any) audit.Snapshot {
	var r audit.Snapshot
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// capture expects exactly one Append and stores the entry it receives.
func (s *RecorderSuite) capture(target *audit.Entry) {
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Entry) error {
			*target = e
			return nil
		})
}

func (s *RecorderSuite) TestNew() {
	_, err := audit.New(nil)
	s.ErrorContains(err, "audit store is required")
}

func (s *RecorderSuite) TestRecordModification() {
	s.Run("writes only changed values with the full previous snapshot", func() {
		var written audit.Entry
		s.capture(&written)

		res, err := s.recorder.RecordModification(s.ctx, audit.ModificationInput{
			OrderID:    "ord-1",
			ModifiedBy: "seller-7",
			Previous:   snapshot("name", "A", "price", 10),
			Current:    snapshot("name", "A", "price", 12),
			Reason:     "price correction",
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusRecorded, res.Status)

		log, ok := written.(audit.ModificationLog)
		s.Require().True(ok)
		s.Equal(res.Entry, written)
		s.NotEqual(uuid.Nil, log.ID)
		s.Equal("ord-1", log.OrderID)
		s.Equal("seller-7", log.ModifiedBy)
		s.Equal(s.now.UTC(), log.ModifiedAt)
		s.Equal([]string{"price"}, log.ChangeFields)
		s.Equal([]string{"price"}, log.ChangedData.Keys())
		price, _ := log.ChangedData.Get("price")
		s.Equal(12, price)
		s.Equal([]string{"name", "price"}, log.PreviousData.Keys())
		s.Equal("price correction", log.ChangeReason)
		s.InDelta(1, promtestutil.ToFloat64(s.metrics.Records.WithLabelValues("order_modification", "recorded")), 0)
	})

	s.Run("identical snapshots write nothing", func() {
		res, err := s.recorder.RecordModification(s.ctx, audit.ModificationInput{
			OrderID:    "ord-1",
			ModifiedBy: "seller-7",
			Previous:   snapshot("name", "A", "price", 10),
			Current:    snapshot("name", "A", "price", 10),
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusNoChange, res.Status)
		s.Nil(res.Entry)
		s.InDelta(1, promtestutil.ToFloat64(s.metrics.Records.WithLabelValues("order_modification", "no_change")), 0)
	})

	s.Run("a copied snapshot edited with Set is still a change", func() {
		previous := snapshot("name", "A", "price", 10)

		var overwritten audit.Entry
		s.capture(&overwritten)
		current := previous
		current.Set("price", 12)
		res, err := s.recorder.RecordModification(s.ctx, audit.ModificationInput{
			OrderID: "ord-3", ModifiedBy: "seller-7", Previous: previous, Current: current,
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusRecorded, res.Status)
		s.Equal([]string{"price"}, overwritten.(audit.ModificationLog).ChangeFields)

		var extended audit.Entry
		s.capture(&extended)
		withSKU := previous
		withSKU.Set("sku", "X")
		s.NotPanics(func() {
			res, err = s.recorder.RecordModification(s.ctx, audit.ModificationInput{
				OrderID: "ord-3", ModifiedBy: "seller-7", Previous: previous, Current: withSKU,
			})
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusRecorded, res.Status)
		s.Equal([]string{"sku"}, extended.(audit.ModificationLog).ChangeFields)

		s.Equal([]string{"name", "price"}, previous.Keys())
		price, _ := previous.Get("price")
		s.Equal(10, price)
	})

	s.Run("missing actor is a validation error", func() {
		_, err := s.recorder.RecordModification(s.ctx, audit.ModificationInput{
			OrderID:  "ord-1",
			Previous: snapshot("price", 10),
			Current:  snapshot("price", 12),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.ErrorContains(err, "modified_by is required")
	})

	s.Run("store failure is reported as write_failed", func() {
		storeErr := errors.New("connection reset")
		s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(storeErr)

		res, err := s.recorder.RecordModification(s.ctx, audit.ModificationInput{
			OrderID:    "ord-2",
			ModifiedBy: "seller-7",
			Previous:   snapshot("status", "pending"),
			Current:    snapshot("status", "shipped"),
		})
		s.Require().Error(err)
		s.ErrorIs(err, audit.ErrWriteFailed)
		s.ErrorIs(err, storeErr)
		s.Equal(audit.StatusWriteFailed, res.Status)
		s.NotNil(res.Entry)
		s.NotEqual(audit.StatusNoChange, res.Status)
		s.InDelta(1, promtestutil.ToFloat64(s.metrics.Records.WithLabelValues("order_modification", "write_failed")), 0)
	})
}

func (s *RecorderSuite) TestRecordDeletion() {
	s.Run("order deletion keeps the full snapshot", func() {
		var written audit.Entry
		s.capture(&written)
		data := snapshot("id", "ord-9", "total", 120.5, "items", []any{"a", "b"})

		res, err := s.recorder.RecordOrderDeletion(s.ctx, audit.DeletionInput{
			EntityID:  "ord-9",
			DeletedBy: "admin-1",
			Data:      data,
			Reason:    "duplicate",
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusRecorded, res.Status)

		log := written.(audit.DeletionLog)
		s.Equal(audit.KindOrderDeletion, log.Kind())
		s.Equal("order:ord-9", log.EntityKey())
		s.Equal(data.Keys(), log.Data.Keys())
		s.Equal(s.now.UTC(), log.DeletedAt)
		s.Equal("duplicate", log.DeletionReason)
	})

	s.Run("product deletion writes even when nothing would diff", func() {
		var written audit.Entry
		s.capture(&written)

		_, err := s.recorder.RecordProductDeletion(s.ctx, audit.DeletionInput{
			EntityID:  "prd-3",
			DeletedBy: "seller-2",
			Data:      snapshot("name", "Gauze"),
		})
		s.Require().NoError(err)
		log := written.(audit.DeletionLog)
		s.Equal(audit.KindProductDeletion, log.Kind())
		s.Equal("product:prd-3", log.EntityKey())
	})

	s.Run("snapshot is copied before writing", func() {
		var written audit.Entry
		s.capture(&written)
		data := snapshot("name", "Gauze")

		_, err := s.recorder.RecordProductDeletion(s.ctx, audit.DeletionInput{
			EntityID: "prd-4", DeletedBy: "seller-2", Data: data,
		})
		s.Require().NoError(err)
		data.Set("name", "Bandage")
		data.Set("sku", "X1")

		log := written.(audit.DeletionLog)
		name, _ := log.Data.Get("name")
		s.Equal("Gauze", name)
		s.False(log.Data.Has("sku"))
	})

	s.Run("empty snapshot is still recorded", func() {
		var written audit.Entry
		s.capture(&written)

		res, err := s.recorder.RecordOrderDeletion(s.ctx, audit.DeletionInput{
			EntityID: "ord-1", DeletedBy: "admin-1",
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusRecorded, res.Status)
		s.Zero(written.(audit.DeletionLog).Data.Len())
	})

	s.Run("missing product id names the field", func() {
		_, err := s.recorder.RecordProductDeletion(s.ctx, audit.DeletionInput{
			DeletedBy: "admin-1", Data: snapshot("name", "Gauze"),
		})
		s.ErrorContains(err, "product_id is required")
	})
}

func (s *RecorderSuite) TestRecordGenericAudit() {
	valid := func() audit.GenericInput {
		prev := snapshot("status", "pending")
		return audit.GenericInput{
			EntityType:   audit.EntityOrder,
			EntityID:     "ord-1",
			Action:       audit.ActionStatusChange,
			ChangedBy:    "admin-1",
			Previous:     &prev,
			Current:      snapshot("status", "approved"),
			ChangeFields: []string{"status"},
		}
	}

	s.Run("request metadata falls back to the request context", func() {
		var written audit.Entry
		s.capture(&written)
		ctx := requestcontext.WithClientMetadata(s.ctx, "203.0.113.9", "curl/8.0")

		_, err := s.recorder.RecordGenericAudit(ctx, valid())
		s.Require().NoError(err)

		entry := written.(audit.GenericAudit)
		s.Equal("203.0.113.9", entry.IPAddress)
		s.Equal("curl/8.0", entry.UserAgent)
		s.Equal(s.now.UTC(), entry.ChangedAt)
		s.Require().NotNil(entry.PreviousData)
		s.Equal([]string{"status"}, entry.ChangeFields)
	})

	s.Run("supplied metadata wins", func() {
		var written audit.Entry
		s.capture(&written)
		ctx := requestcontext.WithClientMetadata(s.ctx, "203.0.113.9", "curl/8.0")
		in := valid()
		in.IPAddress = "198.51.100.1"
		in.UserAgent = "worker"

		_, err := s.recorder.RecordGenericAudit(ctx, in)
		s.Require().NoError(err)
		entry := written.(audit.GenericAudit)
		s.Equal("198.51.100.1", entry.IPAddress)
		s.Equal("worker", entry.UserAgent)
	})

	s.Run("creation has no previous snapshot", func() {
		var written audit.Entry
		s.capture(&written)
		in := valid()
		in.Action = audit.ActionCreate
		in.Previous = nil
		in.ChangeFields = nil

		_, err := s.recorder.RecordGenericAudit(s.ctx, in)
		s.Require().NoError(err)
		entry := written.(audit.GenericAudit)
		s.Nil(entry.PreviousData)
		s.Empty(entry.ChangeFields)
	})

	invalid := []struct {
		name   string
		mutate func(*audit.GenericInput)
		msg    string
	}{
		{"update needs changed fields", func(in *audit.GenericInput) {
			in.Action = audit.ActionUpdate
			in.ChangeFields = nil
		}, "change_fields is required"},
		{"changed field outside current", func(in *audit.GenericInput) {
			in.ChangeFields = []string{"price"}
		}, `"price" is not in current_data`},
		{"unknown action", func(in *audit.GenericInput) { in.Action = "archive" }, "action is invalid"},
		{"unknown entity type", func(in *audit.GenericInput) { in.EntityType = "invoice" }, "entity_type is invalid"},
		{"empty current", func(in *audit.GenericInput) { in.Current = audit.Snapshot{} }, "current_data is required"},
		{"missing actor", func(in *audit.GenericInput) { in.ChangedBy = "" }, "changed_by is required"},
	}
	for _, tc := range invalid {
		s.Run(tc.name, func() {
			in := valid()
			tc.mutate(&in)
			_, err := s.recorder.RecordGenericAudit(s.ctx, in)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
			s.ErrorContains(err, tc.msg)
		})
	}
}

func (s *RecorderSuite) TestRecordUpdate() {
	s.Run("derives changed fields from the snapshots", func() {
		var written audit.Entry
		s.capture(&written)

		res, err := s.recorder.RecordUpdate(s.ctx, audit.UpdateInput{
			EntityType: audit.EntityProduct,
			EntityID:   "prd-1",
			ChangedBy:  "seller-1",
			Previous:   snapshot("name", "Gauze", "stock", 4, "legacy", true),
			Current:    snapshot("stock", 9, "name", "Gauze"),
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusRecorded, res.Status)

		entry := written.(audit.GenericAudit)
		s.Equal(audit.ActionUpdate, entry.Action)
		s.Equal([]string{"stock"}, entry.ChangeFields)
		s.Equal([]string{"stock", "name"}, entry.CurrentData.Keys())
		s.Require().NotNil(entry.PreviousData)
		s.True(entry.PreviousData.Has("legacy"))
	})

	s.Run("unchanged snapshots write nothing", func() {
		res, err := s.recorder.RecordUpdate(s.ctx, audit.UpdateInput{
			EntityType: audit.EntityCategory,
			EntityID:   "cat-1",
			ChangedBy:  "admin-1",
			Previous:   snapshot("name", "Wound care"),
			Current:    snapshot("name", "Wound care"),
		})
		s.Require().NoError(err)
		s.Equal(audit.StatusNoChange, res.Status)
	})
}
