package batch

import (
	"encoding/json"
	"errors"

	"github.com/YannKr/certstamp/internal/apperr"
)

type rowErrorJSON struct {
	Code           string   `json:"code"`
	Message        string   `json:"message"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

type resultJSON struct {
	RowIndex      int           `json:"row_index"`
	OK            bool          `json:"ok"`
	CertificateID string        `json:"certificate_id,omitempty"`
	UniqueCode    string        `json:"unique_code,omitempty"`
	Error         *rowErrorJSON `json:"error,omitempty"`
}

// MarshalJSON reports failures with their public message only.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{RowIndex: r.RowIndex, OK: r.OK()}
	if r.Certificate != nil {
		out.CertificateID = r.Certificate.ID
		out.UniqueCode = r.Certificate.UniqueCode
	}
	if r.Err != nil {
		re := &rowErrorJSON{Code: apperr.CodeOf(r.Err), Message: apperr.PublicMessage(r.Err)}
		var rve *RowValidationError
		if errors.As(r.Err, &rve) {
			re.Message = rve.Error()
			re.MissingColumns = rve.MissingColumns
		}
		out.Error = re
	}
	return json.Marshal(out)
}
