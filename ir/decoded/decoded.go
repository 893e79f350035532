// Package decoded is the middle stage of the parse pipeline: every stream in
// the raw object graph run through the filter pipeline, decoded concurrently.
package decoded

import (
	"context"
	"runtime"
	"sync"

	"github.com/fileskadis/fileskadis/filters"
	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/parser"
)

// StreamData is one decoded stream. Remaining lists filters the pipeline had
// no decoder for; Data then still carries those encodings.
type StreamData struct {
	Data      []byte
	Remaining []string
}

// Document pairs the raw graph with decoded payloads keyed by reference.
type Document struct {
	Raw     *raw.Document
	Streams map[raw.Ref]*StreamData
}

// Stream returns the decoded payload for ref, or nil.
func (d *Document) Stream(ref raw.Ref) *StreamData {
	return d.Streams[ref]
}

// Decode decodes all streams using up to workers goroutines (GOMAXPROCS when
// workers is zero). Streams that fail to decode are dropped with a warning;
// a single bad stream must not sink the document.
func Decode(ctx context.Context, rawDoc *raw.Document, pipeline *filters.Pipeline, workers int, logger observability.Logger) (*Document, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if pipeline == nil {
		pipeline = filters.Default()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	doc := &Document{Raw: rawDoc, Streams: make(map[raw.Ref]*StreamData)}

	type job struct {
		ref raw.Ref
		st  *raw.Stream
	}
	var jobs []job
	for ref, obj := range rawDoc.Objects {
		if st, ok := obj.(*raw.Stream); ok {
			jobs = append(jobs, job{ref, st})
		}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			names := rawDoc.FilterNames(j.st.Dict)
			parms := make([]filters.Parms, len(names))
			for i := range names {
				parms[i] = parser.ParmsFromDict(rawDoc, rawDoc.DecodeParms(j.st.Dict, i))
			}
			data, remaining, err := pipeline.Decode(j.st.Raw, names, parms)
			if err != nil {
				logger.Warn("stream decode failed",
					observability.Int("num", j.ref.Num),
					observability.Error("err", err))
				return
			}
			mu.Lock()
			doc.Streams[j.ref] = &StreamData{Data: data, Remaining: remaining}
			mu.Unlock()
		}(j)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}
