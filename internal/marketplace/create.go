package marketplace

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// Upload is one file carried inside the create request.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// CreateAssignmentRequest is the minimum contract for a new assignment.
// Optional fields are omitted from the form when empty.
type CreateAssignmentRequest struct {
	Type             models.AssignmentType `json:"type"`
	Subtype          string                `json:"subtype"`
	AcademicLevel    models.AcademicLevel  `json:"academic_level"`
	Title            string                `json:"title"`
	Subject          string                `json:"subject,omitempty"`
	WordCount        string                `json:"word_count,omitempty"`
	Deadline         time.Time             `json:"deadline"`
	ReferencingStyle string                `json:"referencing_style,omitempty"`
	Instructions     string                `json:"instructions,omitempty"`
	Files            []Upload              `json:"-"`
}

// Fields returns the form fields in a stable order.
func (r *CreateAssignmentRequest) Fields() [][2]string {
	fields := [][2]string{
		{"type", string(r.Type)},
		{"subtype", r.Subtype},
		{"academic_level", string(r.AcademicLevel)},
		{"title", r.Title},
		{"deadline", r.Deadline.UTC().Format(time.RFC3339)},
	}
	opt := [][2]string{
		{"subject", r.Subject},
		{"word_count", r.WordCount},
		{"referencing_style", r.ReferencingStyle},
		{"instructions", r.Instructions},
	}
	for _, f := range opt {
		if strings.TrimSpace(f[1]) != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// CreatedAssignment is the marketplace's answer to a successful create.
type CreatedAssignment struct {
	ID          string       `json:"id"`
	Stage       models.Stage `json:"stage"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// CreateAssignment sends the draft and all raw files in one multipart request.
// idempotencyKey lets the marketplace collapse a replay of the same session.
func (c *Client) CreateAssignment(ctx context.Context, token, idempotencyKey string, in *CreateAssignmentRequest) (*CreatedAssignment, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeCreateForm(mw, in))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/assignments", token, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var out CreatedAssignment
	err = c.do(req, &out)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create assignment: empty id in response")
	}
	if out.Stage == "" {
		out.Stage = models.StageSubmitted
	}
	return &out, nil
}

func writeCreateForm(mw *multipart.Writer, in *CreateAssignmentRequest) error {
	for _, f := range in.Fields() {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	for _, up := range in.Files {
		if err := writeFilePart(mw, up); err != nil {
			return fmt.Errorf("attach %s: %w", up.Name, err)
		}
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(mw *multipart.Writer, up Upload) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="files[]"; filename="%s"`, quoteEscaper.Replace(up.Name)))
	ct := up.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	rc, err := up.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(part, rc)
	return err
}
