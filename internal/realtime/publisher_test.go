package realtime

import (
	"bidflow/internal/models"
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestMulti_Publish(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := NewMockPublisher(ctrl)
	second := NewMockPublisher(ctrl)
	event := models.Event{Type: models.EventBidPlaced, AuctionID: "auction1"}
	topic := models.AuctionTopic("auction1")

	t.Run("all_succeed", func(t *testing.T) {
		first.EXPECT().Publish(gomock.Any(), topic, event).Return(nil)
		second.EXPECT().Publish(gomock.Any(), topic, event).Return(nil)

		require.NoError(t, Multi{first, second}.Publish(context.Background(), topic, event))
	})

	t.Run("one_fails_others_still_called", func(t *testing.T) {
		failure := errors.New("redis down")
		first.EXPECT().Publish(gomock.Any(), topic, event).Return(failure)
		second.EXPECT().Publish(gomock.Any(), topic, event).Return(nil)

		err := Multi{first, second}.Publish(context.Background(), topic, event)
		require.ErrorIs(t, err, failure)
	})
}

func TestNotify(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := NewMockPublisher(ctrl)
	event := models.Event{Type: models.EventAuctionEnded, AuctionID: "auction1"}

	pub.EXPECT().Publish(gomock.Any(), "auction:auction1", event).Return(errors.New("backlog full"))
	require.NotPanics(t, func() {
		Notify(context.Background(), pub, models.AuctionTopic("auction1"), event)
	})

	require.NotPanics(t, func() {
		Notify(context.Background(), nil, models.AuctionTopic("auction1"), event)
	})
}
