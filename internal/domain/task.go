package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var taskNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Task is one unit of extraction work for one input document
type Task struct {
	ID         string
	Seq        int    // submission index within the batch
	DocumentID string // name the document is reported under
	SourceRef  string // opaque handle passed to the extraction client
}

// NewTask builds a task whose ID is derived from the batch ID and submission index
func NewTask(batchID string, seq int, documentID string) Task {
	name := fmt.Sprintf("%s/%d", batchID, seq)
	return Task{
		ID:         uuid.NewSHA1(taskNamespace, []byte(name)).String(),
		Seq:        seq,
		DocumentID: documentID,
		SourceRef:  documentID,
	}
}

// Table is one extracted table
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ColumnCount returns the header width
func (t Table) ColumnCount() int {
	return len(t.Headers)
}

// Extraction is the success payload of a remote extraction
type Extraction struct {
	Content       string  `json:"content"`
	Tables        []Table `json:"tables,omitempty"`
	PageCount     int     `json:"page_count"`
	TableCount    int     `json:"table_count"`
	ProcessorInfo string  `json:"processor_info"`
	SizeBytes     int64   `json:"size_bytes"`
}

// Failure is the failure payload of a task
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// TaskResult is the outcome of exactly one task. Exactly one of Extraction and Failure is set.
type TaskResult struct {
	TaskID     string        `json:"task_id"`
	Seq        int           `json:"seq"`
	DocumentID string        `json:"document_id"`
	SourceRef  string        `json:"source_ref"`
	WorkerID   int           `json:"worker_id"`
	Extraction *Extraction   `json:"extraction,omitempty"`
	Failure    *Failure      `json:"failure,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// NewSuccess builds a successful result for task
func NewSuccess(task Task, ext *Extraction, started time.Time, finished time.Time) TaskResult {
	return TaskResult{
		TaskID:     task.ID,
		Seq:        task.Seq,
		DocumentID: task.DocumentID,
		SourceRef:  task.SourceRef,
		Extraction: ext,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
}

// NewFailure builds a failed result for task
func NewFailure(task Task, kind ErrorKind, message string, started time.Time, finished time.Time) TaskResult {
	return TaskResult{
		TaskID:     task.ID,
		Seq:        task.Seq,
		DocumentID: task.DocumentID,
		SourceRef:  task.SourceRef,
		Failure:    &Failure{Kind: kind, Message: message},
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
}

// Succeeded returns true if the task produced an extraction
func (r TaskResult) Succeeded() bool {
	return r.Extraction != nil && r.Failure == nil
}

// Status returns the outcome state
func (r TaskResult) Status() TaskStatus {
	if r.Succeeded() {
		return StatusSucceeded
	}
	return StatusFailed
}

// BaseName strips the directory, the extension and the "_extracted" processing suffix
// from a document identifier: "outputs/Sheets_extracted.txt" -> "Sheets".
func BaseName(documentID string) string {
	name := filepath.Base(filepath.ToSlash(documentID))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.TrimSuffix(name, "_extracted")
}
