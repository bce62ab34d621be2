package eventchan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type EventChanTestSuite struct {
	suite.Suite
}

func TestEventChanSuite(t *testing.T) {
	suite.Run(t, new(EventChanTestSuite))
}

func (suite *EventChanTestSuite) TestSendRecvFIFO() {
	sender, receiver := New[int]()

	for i := 0; i < 5000; i++ {
		suite.Require().NoError(sender.Send(i))
	}

	suite.Equal(5000, receiver.Len())

	ctx := context.Background()
	for i := 0; i < 5000; i++ {
		v, err := receiver.Recv(ctx)
		suite.Require().NoError(err)
		suite.Equal(i, v)
	}

	suite.Equal(0, receiver.Len())
}

func (suite *EventChanTestSuite) TestSendAfterReceiverClosed() {
	sender, receiver := New[string]()
	clone := sender.Clone()

	receiver.Close()

	err := sender.Send("late")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeChannelClosed))
	suite.True(errors.HasCode(clone.Send("late"), errors.ErrCodeChannelClosed))
	suite.True(sender.IsClosed())
}

func (suite *EventChanTestSuite) TestClosedHandleRejectsSend() {
	sender, receiver := New[int]()
	clone := sender.Clone()

	clone.Close()
	clone.Close()

	suite.True(errors.HasCode(clone.Send(1), errors.ErrCodeChannelClosed))
	suite.NoError(sender.Send(2))

	v, ok := receiver.TryRecv()
	suite.True(ok)
	suite.Equal(2, v)
}

func (suite *EventChanTestSuite) TestEndOfStreamAfterAllSendersClose() {
	sender, receiver := New[int]()
	clone := sender.Clone()

	suite.NoError(sender.Send(1))
	suite.NoError(clone.Send(2))
	sender.Close()
	clone.Close()

	ctx := context.Background()
	v, err := receiver.Recv(ctx)
	suite.NoError(err)
	suite.Equal(1, v)
	v, err = receiver.Recv(ctx)
	suite.NoError(err)
	suite.Equal(2, v)

	_, err = receiver.Recv(ctx)
	suite.True(errors.HasCode(err, errors.ErrCodeChannelClosed))
}

func (suite *EventChanTestSuite) TestRecvHonoursContext() {
	_, receiver := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := receiver.Recv(ctx)
	suite.ErrorIs(err, context.DeadlineExceeded)
}

func (suite *EventChanTestSuite) TestRecvWakesOnSend() {
	sender, receiver := New[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = sender.Send(42)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := receiver.Recv(ctx)
	suite.NoError(err)
	suite.Equal(42, v)
}

func (suite *EventChanTestSuite) TestConcurrentProducersKeepPerProducerOrder() {
	sender, receiver := New[[2]int]()

	const producers = 16
	const perProducer = 1000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		handle := sender.Clone()
		wg.Add(1)

		go func(id int, s *Sender[[2]int]) {
			defer wg.Done()
			defer s.Close()

			for i := 0; i < perProducer; i++ {
				suite.NoError(s.Send([2]int{id, i}))
			}
		}(p, handle)
	}

	sender.Close()

	next := make([]int, producers)
	count := 0

	for v := range receiver.All(context.Background()) {
		suite.Equal(next[v[0]], v[1], "producer %d out of order", v[0])
		next[v[0]]++
		count++
	}

	wg.Wait()
	suite.Equal(producers*perProducer, count)
}

func (suite *EventChanTestSuite) TestAllStopsWhenConsumerBreaks() {
	sender, receiver := New[int]()
	for i := 0; i < 10; i++ {
		suite.NoError(sender.Send(i))
	}

	seen := 0
	for v := range receiver.All(context.Background()) {
		seen++
		if v == 2 {
			break
		}
	}

	suite.Equal(3, seen)
	suite.Equal(7, receiver.Len())
}
