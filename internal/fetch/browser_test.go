package fetch

import (
	"sync"
	"testing"

	"github.com/chromedp/cdproto/network"
)

func documentEvent(status int64) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: status},
	}
}

func TestDocumentStatus_FirstDocumentWins(t *testing.T) {
	var ds documentStatus
	ds.record(documentEvent(301))
	ds.record(documentEvent(200))

	if got := ds.get(); got != 301 {
		t.Errorf("get() = %d, want the first recorded status 301", got)
	}
}

func TestDocumentStatus_IgnoresNonDocumentEvents(t *testing.T) {
	var ds documentStatus
	ds.record(&network.EventResponseReceived{
		Type:     network.ResourceTypeXHR,
		Response: &network.Response{Status: 500},
	})
	ds.record(&network.EventLoadingFinished{})

	if got := ds.get(); got != 0 {
		t.Errorf("get() = %d, want 0 with no document response", got)
	}

	ds.record(documentEvent(429))
	if got := ds.get(); got != 429 {
		t.Errorf("get() = %d, want 429", got)
	}
}

func TestDocumentStatus_ConcurrentRecord(t *testing.T) {
	var ds documentStatus

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				ds.record(documentEvent(200))
				if got := ds.get(); got != 200 {
					t.Errorf("get() = %d mid-run", got)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := ds.get(); got != 200 {
		t.Errorf("get() = %d, want 200", got)
	}
}
