package printing

import (
	"bytes"
	"errors"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
)

var disableConfigDir sync.Once

// newPdfcpuConfiguration returns a pdfcpu configuration that never touches
// the user's config directory.
func newPdfcpuConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// decryptPDF removes the encryption from data using password as both the
// user and owner password.
func decryptPDF(data []byte, password string) ([]byte, error) {
	conf := newPdfcpuConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, printing.NewPrintError(printing.ErrCodeInvalidPassword, "incorrect document password", nil)
		}
		return nil, printing.NewPrintError(printing.ErrCodeCorruptDocument, "failed to decrypt document", err)
	}
	return out.Bytes(), nil
}
