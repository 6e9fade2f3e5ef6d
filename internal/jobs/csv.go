package jobs

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Header is the fixed column schema of the upload list file. The tags
// column holds a comma-joined list inside the single field.
var Header = []string{
	"file", "title", "description", "tags",
	"category_id", "privacy_status", "playlist_name", "publish_at",
}

// ParseList decodes an upload list. The first row must be the header;
// column order is taken from it so hand-edited files with reordered
// columns still load. Row order is preserved.
func ParseList(r io.Reader) ([]Job, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("upload list is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["file"]; !ok {
		return nil, fmt.Errorf("upload list header is missing the file column")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var list []Job
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		job := Job{
			File:         field(record, "file"),
			Title:        field(record, "title"),
			Description:  field(record, "description"),
			Tags:         SplitTags(field(record, "tags")),
			CategoryID:   field(record, "category_id"),
			Privacy:      PrivacyStatus(field(record, "privacy_status")),
			PlaylistName: field(record, "playlist_name"),
			PublishAt:    field(record, "publish_at"),
		}
		if job.CategoryID == "" {
			job.CategoryID = DefaultCategoryID
		}
		if job.Privacy == "" {
			job.Privacy = PrivacyPublic
		}
		list = append(list, job)
	}
	return list, nil
}

// WriteList encodes jobs back to the canonical header order.
func WriteList(w io.Writer, list []Job) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, job := range list {
		record := []string{
			job.File,
			job.Title,
			job.Description,
			strings.Join(job.Tags, ","),
			job.CategoryID,
			string(job.Privacy),
			job.PlaylistName,
			job.PublishAt,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SplitTags splits a comma-joined tag field, trimming whitespace and
// dropping empty entries. Order is preserved.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
