package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

const (
	MaxFiles    = 5
	MaxFileSize = 25 << 20 // 25MB
)

// Draft is the in-progress assignment. Files are held in the portal and only
// leave it inside the final create request.
type Draft struct {
	Type             models.AssignmentType `json:"type"`
	Subtype          string                `json:"subtype"`
	AcademicLevel    models.AcademicLevel  `json:"academic_level"`
	Title            string                `json:"title"`
	Subject          string                `json:"subject"`
	WordCount        string                `json:"word_count"`
	Deadline         string                `json:"deadline"`
	ReferencingStyle string                `json:"referencing_style"`
	Instructions     string                `json:"instructions"`
	Files            []FileHandle          `json:"files"`
}

// FileHandle is an accepted attachment. Content stays private to the package.
type FileHandle struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	data        []byte
}

// FileCandidate is a file offered by the user. Load is only called for files
// that pass the metadata checks.
type FileCandidate struct {
	Name        string
	Size        int64
	ContentType string
	Load        func() ([]byte, error)
}

// FileSelection reports what happened to one batch of candidates.
type FileSelection struct {
	Accepted   []FileHandle `json:"accepted"`
	Rejections []string     `json:"rejections"`
}

// DetailsPatch is a partial update of the details step. Nil fields are left
// untouched.
type DetailsPatch struct {
	Subtype          *string `json:"subtype"`
	AcademicLevel    *string `json:"academic_level"`
	Title            *string `json:"title"`
	Subject          *string `json:"subject"`
	WordCount        *string `json:"word_count"`
	Deadline         *string `json:"deadline"`
	ReferencingStyle *string `json:"referencing_style"`
	Instructions     *string `json:"instructions"`
}

func (p DetailsPatch) apply(d *Draft) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.Subtype, p.Subtype)
	if p.AcademicLevel != nil {
		d.AcademicLevel = models.AcademicLevel(strings.TrimSpace(*p.AcademicLevel))
	}
	set(&d.Title, p.Title)
	set(&d.Subject, p.Subject)
	set(&d.WordCount, p.WordCount)
	set(&d.Deadline, p.Deadline)
	set(&d.ReferencingStyle, p.ReferencingStyle)
	set(&d.Instructions, p.Instructions)
}

// selectFiles admits candidates in order until the draft holds MaxFiles.
// Every refusal gets its own message.
func (d *Draft) selectFiles(cands []FileCandidate) FileSelection {
	sel := FileSelection{Accepted: []FileHandle{}, Rejections: []string{}}
	for _, c := range cands {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = "unnamed file"
		}
		switch {
		case c.Size > MaxFileSize:
			sel.Rejections = append(sel.Rejections, fmt.Sprintf("%s is larger than 25MB", name))
			continue
		case c.Size <= 0:
			sel.Rejections = append(sel.Rejections, fmt.Sprintf("%s is empty", name))
			continue
		case len(d.Files) >= MaxFiles:
			sel.Rejections = append(sel.Rejections, fmt.Sprintf("%s was not added: at most %d files can be attached", name, MaxFiles))
			continue
		}

		data, err := c.Load()
		if err != nil {
			sel.Rejections = append(sel.Rejections, fmt.Sprintf("%s could not be read", name))
			continue
		}
		fh := FileHandle{Name: name, Size: int64(len(data)), ContentType: c.ContentType, data: data}
		d.Files = append(d.Files, fh)
		sel.Accepted = append(sel.Accepted, fh)
	}
	return sel
}

func (d *Draft) removeFile(i int) bool {
	if i < 0 || i >= len(d.Files) {
		return false
	}
	d.Files = append(d.Files[:i:i], d.Files[i+1:]...)
	return true
}

// clone copies the draft so a submission can read it without the session lock.
// File content is immutable once accepted, so the byte slices are shared.
func (d *Draft) clone() Draft {
	out := *d
	out.Files = append([]FileHandle(nil), d.Files...)
	return out
}

// BuildCreateRequest serializes a validated draft into the marketplace
// create contract. Blank optional fields are dropped by the client.
func BuildCreateRequest(d *Draft) (*marketplace.CreateAssignmentRequest, error) {
	deadline, err := ParseDeadline(d.Deadline)
	if err != nil {
		return nil, fmt.Errorf("deadline: %w", err)
	}
	req := &marketplace.CreateAssignmentRequest{
		Type:             d.Type,
		Subtype:          d.Subtype,
		AcademicLevel:    d.AcademicLevel,
		Title:            strings.TrimSpace(d.Title),
		Subject:          strings.TrimSpace(d.Subject),
		WordCount:        strings.TrimSpace(d.WordCount),
		Deadline:         deadline,
		ReferencingStyle: strings.ToLower(strings.TrimSpace(d.ReferencingStyle)),
		Instructions:     strings.TrimSpace(d.Instructions),
	}
	for _, f := range d.Files {
		data := f.data
		req.Files = append(req.Files, marketplace.Upload{
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		})
	}
	return req, nil
}

// snapshotJSON is what the audit log keeps of a draft: fields and file
// metadata, never content.
func (d *Draft) snapshotJSON() []byte {
	b, err := json.Marshal(d)
	if err != nil {
		return []byte("{}")
	}
	return b
}
