package model

import "time"

type FieldType string

const (
	FieldParticipantName     FieldType = "participant_name"
	FieldDocumentID          FieldType = "document_id"
	FieldCertifierName       FieldType = "certifier_name"
	FieldRepresentativeName  FieldType = "representative_name"
	FieldRepresentativeName2 FieldType = "representative_name_2"
	FieldRepresentativeName3 FieldType = "representative_name_3"
	FieldDate                FieldType = "date"
	FieldUniqueCode          FieldType = "unique_code"
	FieldQRCode              FieldType = "qr_code"
)

var FieldTypes = []FieldType{
	FieldParticipantName,
	FieldDocumentID,
	FieldCertifierName,
	FieldRepresentativeName,
	FieldRepresentativeName2,
	FieldRepresentativeName3,
	FieldDate,
	FieldUniqueCode,
	FieldQRCode,
}

func (t FieldType) Valid() bool {
	for _, ft := range FieldTypes {
		if t == ft {
			return true
		}
	}
	return false
}

func (t FieldType) IsQR() bool { return t == FieldQRCode }

type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

func (a TextAlign) Valid() bool {
	return a == AlignLeft || a == AlignCenter || a == AlignRight
}

// Field is one placed element on a template. Coordinates are in the
// template's native pixel space.
type Field struct {
	ID         string    `json:"id"`
	Type       FieldType `json:"field_type"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	FontFamily string    `json:"font_family,omitempty"`
	FontSize   float64   `json:"font_size,omitempty"`
	FontColor  string    `json:"font_color,omitempty"`
	TextAlign  TextAlign `json:"text_align,omitempty"`
}

type Template struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	BackgroundPath string    `json:"-"`
	BackgroundMime string    `json:"background_mime"`
	SourceType     string    `json:"source_type"`
	SHA256         string    `json:"sha256"`
	Fields         []Field   `json:"fields"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Participant struct {
	Name                string `json:"participant_name"`
	DocumentID          string `json:"document_id"`
	CertifierName       string `json:"certifier_name"`
	RepresentativeName  string `json:"representative_name"`
	RepresentativeName2 string `json:"representative_name_2,omitempty"`
	RepresentativeName3 string `json:"representative_name_3,omitempty"`
}

type Certificate struct {
	ID                  string    `json:"id"`
	TemplateID          string    `json:"template_id"`
	UniqueCode          string    `json:"unique_code"`
	ParticipantName     string    `json:"participant_name"`
	DocumentID          string    `json:"document_id"`
	CertifierName       string    `json:"certifier_name"`
	RepresentativeName  string    `json:"representative_name"`
	RepresentativeName2 *string   `json:"representative_name_2,omitempty"`
	RepresentativeName3 *string   `json:"representative_name_3,omitempty"`
	EventName           *string   `json:"event_name,omitempty"`
	CourseName          *string   `json:"course_name,omitempty"`
	IssueDate           time.Time `json:"issue_date"`
	IsValid             bool      `json:"is_valid"`
	ValidationCount     int64     `json:"validation_count"`
	HashCode            string    `json:"hash_code"`
	ArtifactPath        string    `json:"-"`
	ArtifactType        string    `json:"artifact_type"`
	ArtifactSize        int64     `json:"artifact_size"`
	CreatedBy           string    `json:"created_by,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// FieldValues maps every field type to the text drawn for it. The qr_code
// entry holds the unique code; the renderer builds the URL.
func (c *Certificate) FieldValues(dateLayout string) map[FieldType]string {
	return map[FieldType]string{
		FieldParticipantName:     c.ParticipantName,
		FieldDocumentID:          c.DocumentID,
		FieldCertifierName:       c.CertifierName,
		FieldRepresentativeName:  c.RepresentativeName,
		FieldRepresentativeName2: deref(c.RepresentativeName2),
		FieldRepresentativeName3: deref(c.RepresentativeName3),
		FieldDate:                c.IssueDate.Format(dateLayout),
		FieldUniqueCode:          c.UniqueCode,
		FieldQRCode:              c.UniqueCode,
	}
}

// CertificateView is what the public verification endpoint returns.
type CertificateView struct {
	UniqueCode          string    `json:"unique_code"`
	ParticipantName     string    `json:"participant_name"`
	DocumentID          string    `json:"document_id"`
	CertifierName       string    `json:"certifier_name"`
	RepresentativeName  string    `json:"representative_name"`
	RepresentativeName2 string    `json:"representative_name_2,omitempty"`
	RepresentativeName3 string    `json:"representative_name_3,omitempty"`
	EventName           string    `json:"event_name,omitempty"`
	CourseName          string    `json:"course_name,omitempty"`
	IssueDate           time.Time `json:"issue_date"`
	IsValid             bool      `json:"is_valid"`
	ValidationCount     int64     `json:"validation_count"`
	HashCode            string    `json:"hash_code"`
}

func (c *Certificate) View() CertificateView {
	return CertificateView{
		UniqueCode:          c.UniqueCode,
		ParticipantName:     c.ParticipantName,
		DocumentID:          c.DocumentID,
		CertifierName:       c.CertifierName,
		RepresentativeName:  c.RepresentativeName,
		RepresentativeName2: deref(c.RepresentativeName2),
		RepresentativeName3: deref(c.RepresentativeName3),
		EventName:           deref(c.EventName),
		CourseName:          deref(c.CourseName),
		IssueDate:           c.IssueDate,
		IsValid:             c.IsValid,
		ValidationCount:     c.ValidationCount,
		HashCode:            c.HashCode,
	}
}

type Validation struct {
	ID            string
	CertificateID string
	IPAddress     string
	UserAgent     string
	ValidatedAt   time.Time
}

type APIKey struct {
	ID         string
	Name       string
	Role       string
	KeyPrefix  string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
