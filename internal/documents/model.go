package documents

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies what a document is.
type Kind string

const (
	KindResume      Kind = "resume"
	KindCoverLetter Kind = "coverletter"
)

// ParseKind accepts the canonical kind names and their plural route forms.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "resume", "resumes":
		return KindResume, nil
	case "coverletter", "coverletters", "cover_letter", "cover-letter":
		return KindCoverLetter, nil
	default:
		return "", invalid(fmt.Sprintf("unknown document kind %q", value))
	}
}

func (k Kind) Valid() bool {
	return k == KindResume || k == KindCoverLetter
}

// DefaultFileName is used when the submitter's full name is blank.
func (k Kind) DefaultFileName() string {
	return string(k)
}

// Folder is the blob key prefix for the kind.
func (k Kind) Folder() string {
	switch k {
	case KindCoverLetter:
		return "coverletters"
	default:
		return "resumes"
	}
}

// DefaultTemplate is used when a request names no template. Resumes have none.
func (k Kind) DefaultTemplate() string {
	if k == KindCoverLetter {
		return "coverletter"
	}
	return ""
}

func (k Kind) fullNamePath() []string {
	if k == KindCoverLetter {
		return []string{"senderInfo", "fullName"}
	}
	return []string{"personalInfo", "fullName"}
}

// Document is a persisted resume or cover letter.
type Document struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"ownerId"`
	Kind       Kind           `json:"kind"`
	FileName   string         `json:"fileName"`
	StorageKey string         `json:"storageKey"`
	FormValues map[string]any `json:"formValues"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Summary is the list projection of a Document.
type Summary struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	FileName  string    `json:"fileName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d Document) Summary() Summary {
	return Summary{ID: d.ID, Kind: d.Kind, FileName: d.FileName, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// ListOptions filters ListByOwner. A zero Kind matches every kind; Limit <= 0 means no limit.
type ListOptions struct {
	Kind   Kind
	Search string
	Limit  int
}

// GenerateRequest is the input to Generate. OwnerID is optional; without it nothing is stored.
type GenerateRequest struct {
	Kind         Kind
	TemplateName string
	FormValues   map[string]any
	OwnerID      string
}

// Generated is the rendered output. Document is nil when nothing was persisted.
type Generated struct {
	PDF      []byte
	FileName string
	Document *Document
}

// File is a downloaded blob with its display name.
type File struct {
	Bytes    []byte `json:"bytes"`
	FileName string `json:"fileName"`
}

// PurgeResult reports an owner cascade.
type PurgeResult struct {
	Found    int `json:"found"`
	Deleted  int `json:"deleted"`
	Retained int `json:"retained"`
}

// DeriveFileName returns the trimmed submitter full name, or the kind default when blank.
func DeriveFileName(kind Kind, values map[string]any) string {
	var current any = values
	for _, key := range kind.fullNamePath() {
		m, ok := current.(map[string]any)
		if !ok {
			return kind.DefaultFileName()
		}
		current = m[key]
	}
	name, _ := current.(string)
	if name = strings.TrimSpace(name); name == "" {
		return kind.DefaultFileName()
	}
	return name
}

// DownloadName is the attachment name for a document's PDF.
func DownloadName(fileName string) string {
	return fileName + ".pdf"
}

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneValues(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
