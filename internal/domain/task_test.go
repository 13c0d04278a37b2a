package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewTask_DeterministicID(t *testing.T) {
	a := NewTask("batch-1", 3, "docs/a.pdf")
	b := NewTask("batch-1", 3, "docs/a.pdf")
	c := NewTask("batch-1", 4, "docs/a.pdf")

	if a.ID != b.ID {
		t.Errorf("ID not stable: %q vs %q", a.ID, b.ID)
	}
	if a.ID == c.ID {
		t.Errorf("different seq produced same ID %q", a.ID)
	}
	if a.SourceRef != "docs/a.pdf" {
		t.Errorf("SourceRef = %q, want docs/a.pdf", a.SourceRef)
	}
	if a.Seq != 3 {
		t.Errorf("Seq = %d, want 3", a.Seq)
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Sheets_extracted.txt", "Sheets"},
		{"outputs/project_data_extracted.txt", "project_data"},
		{"/abs/dir/Finish Schedule A.pdf", "Finish Schedule A"},
		{"s3://bucket/in/zzz.png", "zzz"},
		{"plain", "plain"},
		{"Sheets_extracted", "Sheets"},
		{"archive.v2.pdf", "archive.v2"},
	}

	for _, tt := range tests {
		if got := BaseName(tt.input); got != tt.want {
			t.Errorf("BaseName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTaskResult_Status(t *testing.T) {
	task := NewTask("b", 0, "a.pdf")
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)

	ok := NewSuccess(task, &Extraction{PageCount: 1}, start, end)
	if !ok.Succeeded() || ok.Status() != StatusSucceeded {
		t.Errorf("success result: Succeeded=%v Status=%s", ok.Succeeded(), ok.Status())
	}
	if ok.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", ok.Duration)
	}

	bad := NewFailure(task, KindRateLimited, "quota", start, end)
	if bad.Succeeded() || bad.Status() != StatusFailed {
		t.Errorf("failure result: Succeeded=%v Status=%s", bad.Succeeded(), bad.Status())
	}
	if bad.Extraction != nil {
		t.Error("failure result carries an extraction")
	}
	if bad.Failure.String() != "rate_limited: quota" {
		t.Errorf("Failure.String() = %q", bad.Failure.String())
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindRateLimited, true},
		{KindTransient, true},
		{KindInvalidDocument, false},
		{KindUnauthorized, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("%s.Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestAsFailure(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", NewExtractionError(KindUnauthorized, errors.New("bad credentials")))
	f := AsFailure(wrapped)
	if f.Kind != KindUnauthorized || f.Message != "bad credentials" {
		t.Errorf("AsFailure(wrapped) = %+v", f)
	}

	f = AsFailure(errors.New("boom"))
	if f.Kind != KindTransient || f.Message != "boom" {
		t.Errorf("AsFailure(plain) = %+v", f)
	}
}

func TestConfigurationError_Is(t *testing.T) {
	err := fmt.Errorf("start: %w", NewConfigurationError("workers must be >= 1, got %d", 0))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("errors.Is(%v, ErrConfiguration) = false", err)
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Reason != "workers must be >= 1, got 0" {
		t.Errorf("Reason = %+v", ce)
	}
}

func TestNewBatchReport_Counts(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var results []TaskResult
	for i := 0; i < 5; i++ {
		task := NewTask("b", i, fmt.Sprintf("doc%d.pdf", i))
		if i%2 == 0 {
			results = append(results, NewSuccess(task, &Extraction{PageCount: 2, TableCount: 1, SizeBytes: 10}, start, start.Add(time.Second)))
		} else {
			results = append(results, NewFailure(task, KindTransient, "x", start, start.Add(time.Second)))
		}
	}
	// completion order differs from submission order
	results[0], results[4] = results[4], results[0]

	r := NewBatchReport("b", "nightly", 2, results, start, start.Add(4*time.Second))

	if r.Succeeded+r.Failed != r.TotalTasks {
		t.Errorf("Succeeded+Failed = %d, want %d", r.Succeeded+r.Failed, r.TotalTasks)
	}
	if r.Succeeded != 3 || r.Failed != 2 {
		t.Errorf("Succeeded=%d Failed=%d, want 3/2", r.Succeeded, r.Failed)
	}
	if r.Throughput != 0.75 {
		t.Errorf("Throughput = %v, want 0.75", r.Throughput)
	}

	sub := r.BySubmission()
	for i, res := range sub {
		if res.Seq != i {
			t.Errorf("BySubmission()[%d].Seq = %d", i, res.Seq)
		}
	}
	if r.PerTask[0].Seq != 4 {
		t.Error("BySubmission reordered PerTask in place")
	}

	s := r.Stats()
	if s.TotalPages != 6 || s.TotalTables != 3 || s.TotalBytes != 30 {
		t.Errorf("Stats totals = %d/%d/%d", s.TotalPages, s.TotalTables, s.TotalBytes)
	}
	if s.AvgProcessingTime != time.Second {
		t.Errorf("AvgProcessingTime = %v, want 1s", s.AvgProcessingTime)
	}
	if got := r.FailuresByKind()[KindTransient]; got != 2 {
		t.Errorf("FailuresByKind[transient] = %d, want 2", got)
	}
}

func TestThroughput_Zero(t *testing.T) {
	if got := Throughput(0, time.Second); got != 0 {
		t.Errorf("Throughput(0, 1s) = %v, want 0", got)
	}
	if got := Throughput(3, 0); got != 0 {
		t.Errorf("Throughput(3, 0) = %v, want 0", got)
	}
}
