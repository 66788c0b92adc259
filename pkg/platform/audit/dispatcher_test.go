package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tranche/internal/platform/logger"
	id "tranche/pkg/domain"
	audit "tranche/pkg/platform/audit"
	"tranche/pkg/platform/audit/mocks"
)

func TestDispatcher_ComplianceIsSynchronousAndFailClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEmitter(ctrl)
	dispatcher := audit.NewDispatcher(sink, 8, logger.New())

	boom := errors.New("sink down")
	sink.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(boom)

	err := dispatcher.Emit(context.Background(), audit.Event{
		Action:  audit.ActionSharesIssued,
		Subject: id.NewIdentity(),
	})
	require.ErrorIs(t, err, boom)
}

func TestDispatcher_OperationsAreQueuedNotEmitted(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEmitter(ctrl)
	dispatcher := audit.NewDispatcher(sink, 8, logger.New())

	err := dispatcher.Emit(context.Background(), audit.Event{
		Action:  audit.ActionTokenIssued,
		Subject: id.NewIdentity(),
	})
	require.NoError(t, err)

	select {
	case event := <-dispatcher.Inbox():
		assert.Equal(t, audit.ActionTokenIssued, event.Action)
		assert.Equal(t, audit.CategoryOperations, event.Category)
		assert.False(t, event.Timestamp.IsZero())
	default:
		t.Fatal("expected a queued operations event")
	}
}

func TestDispatcher_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEmitter(ctrl)
	dispatcher := audit.NewDispatcher(sink, 1, logger.New())
	ctx := context.Background()

	require.NoError(t, dispatcher.Emit(ctx, audit.Event{Action: audit.ActionTokenIssued}))
	require.NoError(t, dispatcher.Emit(ctx, audit.Event{Action: audit.ActionTokenIssued}))
}

func TestFanout_StopsAtFirstError(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockEmitter(ctrl)
	second := mocks.NewMockEmitter(ctrl)

	boom := errors.New("boom")
	first.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(boom)

	err := audit.Fanout{first, second}.Emit(context.Background(), audit.Event{
		Action: audit.ActionSharesIssued,
	})
	require.ErrorIs(t, err, boom)
}

func TestFanout_EmitsToEverySink(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockEmitter(ctrl)
	second := mocks.NewMockEmitter(ctrl)

	first.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
	second.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	err := audit.Fanout{first, second}.Emit(context.Background(), audit.Event{
		Action: audit.ActionSharesIssued,
	})
	require.NoError(t, err)
}
