package documents

import "time"

// DocumentResponse is the outward-facing representation of a stored document.
type DocumentResponse struct {
	DocumentID string         `json:"documentId"`
	Kind       Kind           `json:"kind"`
	FileName   string         `json:"fileName"`
	URL        string         `json:"url"`
	FormValues map[string]any `json:"formValues"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// SummaryResponse is one entry of a document listing.
type SummaryResponse struct {
	DocumentID string    `json:"documentId"`
	Kind       Kind      `json:"kind"`
	FileName   string    `json:"fileName"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toResponse(doc Document, url string) DocumentResponse {
	return DocumentResponse{
		DocumentID: doc.ID,
		Kind:       doc.Kind,
		FileName:   doc.FileName,
		URL:        url,
		FormValues: doc.FormValues,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func toSummaries(items []Summary) []SummaryResponse {
	out := make([]SummaryResponse, 0, len(items))
	for _, s := range items {
		out = append(out, SummaryResponse{
			DocumentID: s.ID,
			Kind:       s.Kind,
			FileName:   s.FileName,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	return out
}
