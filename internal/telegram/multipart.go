package telegram

import (
	"fmt"
	"io"
	"mime/multipart"
)

// MultipartWriter wraps multipart.Writer for Bot API file uploads.
type MultipartWriter struct {
	w   *multipart.Writer
	err error
}

func NewMultipartWriter(w io.Writer) *MultipartWriter {
	return &MultipartWriter{w: multipart.NewWriter(w)}
}

// WriteField adds a text field. The first write error is reported by Close.
func (m *MultipartWriter) WriteField(name, value string) {
	if m.err != nil {
		return
	}
	m.err = m.w.WriteField(name, value)
}

// WriteFile adds a file part with the given field name, filename, and content.
func (m *MultipartWriter) WriteFile(fieldName, filename string, data []byte) error {
	part, err := m.w.CreateFormFile(fieldName, filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	_, err = part.Write(data)
	return err
}

func (m *MultipartWriter) FormDataContentType() string {
	return m.w.FormDataContentType()
}

// Close finalizes the multipart message.
func (m *MultipartWriter) Close() error {
	if m.err != nil {
		return fmt.Errorf("writing field: %w", m.err)
	}
	return m.w.Close()
}
