package backup

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

const nasTimeout = 60 * time.Second

// NASUploader posts snapshots to a NAS backup API as multipart form data
// with fields file, fileName and source.
type NASUploader struct {
	URL    string
	Token  string
	Source string
	Client *http.Client
}

func NewNASUploader(url, token string) *NASUploader {
	return &NASUploader{
		URL:    url,
		Token:  token,
		Source: "kakeibo",
		Client: &http.Client{Timeout: nasTimeout},
	}
}

func (u *NASUploader) Name() string { return "nas" }

func (u *NASUploader) Upload(ctx context.Context, path, fileName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f, fileName, u.Source))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.Token)
	}

	client := u.Client
	if client == nil {
		client = &http.Client{Timeout: nasTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("post backup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nas responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func writeForm(mw *multipart.Writer, src io.Reader, fileName, source string) error {
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	if err := mw.WriteField("fileName", fileName); err != nil {
		return err
	}
	if err := mw.WriteField("source", source); err != nil {
		return err
	}
	return mw.Close()
}
