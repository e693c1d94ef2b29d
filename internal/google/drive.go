package google

import (
	"context"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/lewisedginton/organizer/internal/tools"
)

const googleDocMimeType = "application/vnd.google-apps.document"

// Docs implements tools.Docs by uploading plain text converted to a Google Doc.
type Docs struct {
	svc *drive.Service
}

func (d *Docs) Create(ctx context.Context, title, content string) (tools.Document, error) {
	f, err := d.svc.Files.Create(&drive.File{Name: title, MimeType: googleDocMimeType}).
		Media(strings.NewReader(content), googleapi.ContentType("text/plain")).
		Fields("id", "name").
		Context(ctx).
		Do()
	if err != nil {
		return tools.Document{}, classify("create document", err)
	}
	return tools.Document{ID: f.Id, Name: f.Name}, nil
}
