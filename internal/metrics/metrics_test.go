package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit_Idempotent(t *testing.T) {
	Init()
	Init()

	if fetchesTotal == nil || cacheLookupsTotal == nil || extractionsTotal == nil ||
		documentsTotal == nil || activeWorkers == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchesTotal.WithLabelValues(KindPDF, "not_pdf"))

	ObserveFetch(KindPDF, "not_pdf", 120*time.Millisecond)
	ObserveFetch(KindPDF, "not_pdf", 0)

	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues(KindPDF, "not_pdf")); got != before+2 {
		t.Errorf("crawler_fetches_total = %f, want %f", got, before+2)
	}
	if n := testutil.CollectAndCount(fetchDurationSeconds); n == 0 {
		t.Error("expected fetch duration to be observed")
	}
}

func TestObserveExtractionAndDocuments(t *testing.T) {
	Init()
	extractBefore := testutil.ToFloat64(extractionsTotal.WithLabelValues("native", "ok"))
	docsBefore := testutil.ToFloat64(documentsTotal.WithLabelValues("sris"))

	ObserveExtraction("native", "ok")
	ObserveDocument("sris")
	ObserveCacheLookup("hit")

	if got := testutil.ToFloat64(extractionsTotal.WithLabelValues("native", "ok")); got != extractBefore+1 {
		t.Errorf("crawler_extractions_total = %f, want %f", got, extractBefore+1)
	}
	if got := testutil.ToFloat64(documentsTotal.WithLabelValues("sris")); got != docsBefore+1 {
		t.Errorf("crawler_documents_total = %f, want %f", got, docsBefore+1)
	}
}

func TestActiveWorkers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before+1 {
		t.Errorf("crawler_active_workers = %f, want %f", got, before+1)
	}
	DecActiveWorkers()
}
