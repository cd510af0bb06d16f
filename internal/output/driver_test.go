package output

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sowawa/fluent-plugin-slack/internal/models"
	"github.com/sowawa/fluent-plugin-slack/internal/payload"
	"github.com/sowawa/fluent-plugin-slack/internal/slack"
)

type fakeDeliverer struct {
	errs     map[string]error
	channels []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, p *slack.Payload, _ slack.PostOptions) error {
	f.channels = append(f.channels, p.Channel)
	return f.errs[p.Channel]
}

type fakeSuppressor struct {
	suppressed map[string]bool
	added      []string
}

func (f *fakeSuppressor) IsChannelSuppressed(_ context.Context, channel string) (bool, error) {
	return f.suppressed[channel], nil
}

func (f *fakeSuppressor) SuppressChannel(_ context.Context, channel string, _ time.Duration) error {
	f.added = append(f.added, channel)
	return nil
}

type fakeStatusSink struct {
	statuses []string
	details  []string
}

func (f *fakeStatusSink) UpdateStatus(_ context.Context, _, status, _, detail string) error {
	f.statuses = append(f.statuses, status)
	f.details = append(f.details, detail)
	return nil
}

func testBatch(channels ...string) *models.Batch {
	b := &models.Batch{RequestID: "req-1", Source: "fluentd"}
	for _, ch := range channels {
		b.Events = append(b.Events, models.Event{
			Tag:    "test",
			Time:   1388613600,
			Record: map[string]interface{}{"message": "hello", "channel": ch},
		})
	}
	return b
}

func channelBuilder() *payload.Builder {
	return payload.NewBuilder(payload.Config{
		Channel:     "#%s",
		ChannelKeys: []string{"channel"},
	}, nil)
}

func newTestDriver(d *fakeDeliverer, s ChannelSuppressor, sink StatusSink) *Driver {
	var updater *StatusUpdater
	if sink != nil {
		updater = NewStatusUpdater(sink, nil)
	}
	return NewDriver(DriverConfig{Backend: "webapi", SuppressTTL: time.Minute},
		channelBuilder(), d, s, updater, nil, nil)
}

func TestWrite_Success(t *testing.T) {
	deliverer := &fakeDeliverer{}
	sink := &fakeStatusSink{}
	drv := newTestDriver(deliverer, nil, sink)

	err := drv.Write(context.Background(), testBatch("one", "two"))
	require.NoError(t, err)
	assert.Equal(t, []string{"#one", "#two"}, deliverer.channels)
	assert.Equal(t, []string{StatusProcessing, StatusDelivered}, sink.statuses)
}

func TestWrite_EmptyBatchIsNoop(t *testing.T) {
	deliverer := &fakeDeliverer{}
	sink := &fakeStatusSink{}
	drv := newTestDriver(deliverer, nil, sink)

	require.NoError(t, drv.Write(context.Background(), testBatch()))
	assert.Empty(t, deliverer.channels)
	assert.Empty(t, sink.statuses)
}

func TestWrite_TransientErrorPropagatesForRetry(t *testing.T) {
	transient := &url.Error{Op: "Post", URL: "https://slack.com/api/chat.postMessage", Err: errors.New("connection refused")}
	deliverer := &fakeDeliverer{errs: map[string]error{"#one": transient}}
	sink := &fakeStatusSink{}
	drv := newTestDriver(deliverer, nil, sink)

	err := drv.Write(context.Background(), testBatch("one"))
	require.Error(t, err)
	var urlErr *url.Error
	assert.ErrorAs(t, err, &urlErr)
	// The batch stays in processing so the requeued delivery picks it up.
	assert.Equal(t, []string{StatusProcessing}, sink.statuses)
}

func TestWrite_ContextCancellationPropagates(t *testing.T) {
	deliverer := &fakeDeliverer{errs: map[string]error{"#one": context.Canceled}}
	drv := newTestDriver(deliverer, nil, nil)

	err := drv.Write(context.Background(), testBatch("one"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrite_TerminalErrorDiscardsBatch(t *testing.T) {
	apiErr := &slack.APIError{StatusCode: 403, Body: "invalid_auth", Params: "channel:#one, token:[FILTERED]"}
	deliverer := &fakeDeliverer{errs: map[string]error{"#one": apiErr}}
	sink := &fakeStatusSink{}
	drv := newTestDriver(deliverer, nil, sink)

	err := drv.Write(context.Background(), testBatch("one", "two"))
	require.NoError(t, err)
	// Delivery stops at the failed payload.
	assert.Equal(t, []string{"#one"}, deliverer.channels)
	assert.Equal(t, []string{StatusProcessing, StatusFailed}, sink.statuses)
	assert.Contains(t, sink.details[1], "[FILTERED]")
}

func TestWrite_ChannelNotFoundSuppressesChannel(t *testing.T) {
	notFound := &slack.ChannelNotFoundError{
		Channel: "#one",
		Cause:   &slack.APIError{StatusCode: 200, Body: "channel_not_found"},
	}
	deliverer := &fakeDeliverer{errs: map[string]error{"#one": notFound}}
	suppressor := &fakeSuppressor{suppressed: map[string]bool{}}
	drv := newTestDriver(deliverer, suppressor, nil)

	require.NoError(t, drv.Write(context.Background(), testBatch("one")))
	assert.Equal(t, []string{"#one"}, suppressor.added)
}

func TestWrite_NameTakenSuppressesChannel(t *testing.T) {
	taken := &slack.NameTakenError{
		Name:  "#one",
		Cause: &slack.APIError{StatusCode: 200, Body: "name_taken"},
	}
	deliverer := &fakeDeliverer{errs: map[string]error{"#one": taken}}
	suppressor := &fakeSuppressor{suppressed: map[string]bool{}}
	drv := newTestDriver(deliverer, suppressor, nil)

	require.NoError(t, drv.Write(context.Background(), testBatch("one")))
	assert.Equal(t, []string{"#one"}, suppressor.added)
}

func TestWrite_GenericErrorDoesNotSuppress(t *testing.T) {
	apiErr := &slack.APIError{StatusCode: 500, Body: "fatal_error"}
	deliverer := &fakeDeliverer{errs: map[string]error{"#one": apiErr}}
	suppressor := &fakeSuppressor{suppressed: map[string]bool{}}
	drv := newTestDriver(deliverer, suppressor, nil)

	require.NoError(t, drv.Write(context.Background(), testBatch("one")))
	assert.Empty(t, suppressor.added)
}

func TestWrite_SuppressedChannelIsSkipped(t *testing.T) {
	deliverer := &fakeDeliverer{}
	suppressor := &fakeSuppressor{suppressed: map[string]bool{"#one": true}}
	sink := &fakeStatusSink{}
	drv := newTestDriver(deliverer, suppressor, sink)

	require.NoError(t, drv.Write(context.Background(), testBatch("one", "two")))
	assert.Equal(t, []string{"#two"}, deliverer.channels)
	// Something was posted, so the batch counts as delivered.
	assert.Equal(t, []string{StatusProcessing, StatusDelivered}, sink.statuses)
}

func TestWrite_AllSuppressedMarksSuppressed(t *testing.T) {
	deliverer := &fakeDeliverer{}
	suppressor := &fakeSuppressor{suppressed: map[string]bool{"#one": true, "#two": true}}
	sink := &fakeStatusSink{}
	drv := newTestDriver(deliverer, suppressor, sink)

	require.NoError(t, drv.Write(context.Background(), testBatch("one", "two")))
	assert.Empty(t, deliverer.channels)
	assert.Equal(t, []string{StatusProcessing, StatusSuppressed}, sink.statuses)
}
