package app

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"lampiran/api/internal/classify"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/sheet"
)

const multipartMemory = 8 << 20

// parseRunForm reads a run upload: one optional "agenda" .docx, one or more
// "xlsx" workbooks, the "km" window, and either the "ut" window or
// "no_ut=true".
func (s *HTTPServer) parseRunForm(w http.ResponseWriter, r *http.Request) (RunInput, error) {
	if err := s.parseMultipart(w, r); err != nil {
		return RunInput{}, err
	}
	form := r.MultipartForm

	var input RunInput
	details := map[string]string{}

	for _, fh := range form.File["xlsx"] {
		data, err := readPart(fh)
		if err != nil {
			return RunInput{}, err
		}
		input.Sheets = append(input.Sheets, sheet.Source{Name: fh.Filename, Data: data})
	}
	if files := form.File["agenda"]; len(files) > 0 {
		data, err := readPart(files[0])
		if err != nil {
			return RunInput{}, err
		}
		input.AgendaName = files[0].Filename
		input.Agenda = data
	}

	km, err := formWindow(r, "km")
	if err != nil {
		details["km"] = err.Error()
	}
	params := classify.Params{KM: km, ReviewEnabled: true}
	if noUT, _ := strconv.ParseBool(r.FormValue("no_ut")); noUT {
		params.ReviewEnabled = false
	} else if params.Review, err = formWindow(r, "ut"); err != nil {
		details["ut"] = err.Error()
	}
	if len(details) > 0 {
		return RunInput{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid run request", details)
	}

	input.Params = params
	input.Notes = strings.TrimSpace(r.FormValue("notes"))
	return input, nil
}

// parsePreviewForm reads an "agenda" file plus the row fields to test.
func (s *HTTPServer) parsePreviewForm(w http.ResponseWriter, r *http.Request) (PreviewInput, error) {
	if err := s.parseMultipart(w, r); err != nil {
		return PreviewInput{}, err
	}
	var input PreviewInput
	if files := r.MultipartForm.File["agenda"]; len(files) > 0 {
		data, err := readPart(files[0])
		if err != nil {
			return PreviewInput{}, err
		}
		input.Agenda = data
	}
	input.Row = permit.RawRow{
		Sheet:     r.FormValue("sheet"),
		Reference: r.FormValue("reference"),
		Applicant: r.FormValue("applicant"),
		Mukim:     r.FormValue("mukim"),
		Lot:       r.FormValue("lot"),
	}
	return input, nil
}

func (s *HTTPServer) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	limit := int64(s.service.cfg.MaxUploadMB) << 20
	if limit <= 0 {
		limit = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return domainError(http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
	}
	return nil
}

// formWindow accepts either "<name>" as "start-end" or "<name>_start" and
// "<name>_end".
func formWindow(r *http.Request, name string) (permit.Window, error) {
	if combined := strings.TrimSpace(r.FormValue(name)); combined != "" {
		return permit.ParseWindow(combined)
	}
	return permit.NewWindow(r.FormValue(name+"_start"), r.FormValue(name+"_end"))
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
