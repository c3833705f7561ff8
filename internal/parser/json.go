package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/readtext/backend/internal/models"
)

// twitterFields maps flattened docvar names to gjson paths in a tweet.
var twitterFields = []struct {
	name string
	path string
}{
	{"retweet_count", "retweet_count"},
	{"favorite_count", "favorite_count"},
	{"favorited", "favorited"},
	{"truncated", "truncated"},
	{"id_str", "id_str"},
	{"in_reply_to_screen_name", "in_reply_to_screen_name"},
	{"source", "source"},
	{"retweeted", "retweeted"},
	{"created_at", "created_at"},
	{"lang", "lang"},
	{"screen_name", "user.screen_name"},
	{"name", "user.name"},
	{"followers_count", "user.followers_count"},
	{"friends_count", "user.friends_count"},
	{"statuses_count", "user.statuses_count"},
	{"location", "user.location"},
	{"verified", "user.verified"},
	{"user_created_at", "user.created_at"},
	{"country_code", "place.country_code"},
	{"place_name", "place.full_name"},
	{"lat", "coordinates.coordinates.1"},
	{"lon", "coordinates.coordinates.0"},
}

// JSONParser reads JSON in three layouts, detected per file: one object or an
// array of objects, newline-delimited objects, or a Twitter stream dump.
type JSONParser struct{}

func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

func (p *JSONParser) Name() string {
	return "json"
}

func (p *JSONParser) Formats() []models.Format {
	return []models.Format{models.FormatJSON}
}

func (p *JSONParser) Parse(ctx context.Context, file models.ResolvedFile, opts Options) ([]models.Record, error) {
	content, err := readFile(file)
	if err != nil {
		return nil, &models.FileError{Path: file.Source, Err: err}
	}

	objects, err := splitObjects(file, strings.TrimSpace(content))
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}

	if anyTweet(objects) {
		return flattenTweets(objects, newInterner()), nil
	}
	if opts.TextField == "" {
		return nil, models.NewConfigError("text_field",
			"must be set for %s (not a Twitter stream)", file.Source)
	}

	in := newInterner()
	records := make([]models.Record, 0, len(objects))
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := objectRecord(file, obj, opts.TextField, in)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// splitObjects detects the file layout and returns its top-level objects.
func splitObjects(file models.ResolvedFile, content string) ([]gjson.Result, error) {
	if content == "" {
		return nil, nil
	}

	if gjson.Valid(content) {
		doc := gjson.Parse(content)
		switch {
		case doc.IsObject():
			return []gjson.Result{doc}, nil
		case doc.IsArray():
			var objects []gjson.Result
			var bad bool
			doc.ForEach(func(_, v gjson.Result) bool {
				if !v.IsObject() {
					bad = true
					return false
				}
				objects = append(objects, v)
				return true
			})
			if bad {
				return nil, formatError(file, "array elements must be objects")
			}
			return objects, nil
		}
		return nil, formatError(file, "top-level value must be an object or array")
	}

	// Newline-delimited objects.
	var objects []gjson.Result
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, formatError(file, "invalid JSON on line %d", i+1)
		}
		obj := gjson.Parse(line)
		if !obj.IsObject() {
			return nil, formatError(file, "line %d is not an object", i+1)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func anyTweet(objects []gjson.Result) bool {
	for _, obj := range objects {
		if obj.Get("text").Exists() && obj.Get("user.screen_name").Exists() {
			return true
		}
	}
	return false
}

// flattenTweets maps tweets to a fixed docvar set. Stream entries without
// text (delete notices, limits) are skipped.
func flattenTweets(objects []gjson.Result, in *interner) []models.Record {
	records := make([]models.Record, 0, len(objects))
	for _, obj := range objects {
		text := obj.Get("text")
		if !text.Exists() {
			continue
		}
		rec := models.Record{
			Text:    text.String(),
			Docvars: make([]models.Docvar, 0, len(twitterFields)),
		}
		for _, f := range twitterFields {
			if v, ok := cellValue(obj.Get(f.path)); ok {
				rec.Docvars = append(rec.Docvars, models.Docvar{Name: f.name, Value: in.intern(v)})
			}
		}
		records = append(records, rec)
	}
	return records
}

// objectRecord takes the text from field and every other top-level key, in
// document order, as a docvar.
func objectRecord(file models.ResolvedFile, obj gjson.Result, field string, in *interner) (models.Record, error) {
	var keys []string
	var values []gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		keys = append(keys, in.intern(k.String()))
		values = append(values, v)
		return true
	})

	idx, ok := fieldIndex(keys, field)
	if !ok {
		return models.Record{}, missingField(file, field, keys)
	}

	rec := models.Record{Text: values[idx].String()}
	for i, k := range keys {
		if i == idx {
			continue
		}
		if v, ok := cellValue(values[i]); ok {
			rec.Docvars = append(rec.Docvars, models.Docvar{Name: k, Value: in.intern(v)})
		}
	}
	return rec, nil
}

// cellValue renders a JSON value as a docvar cell. null and absent values are
// missing; nested values become compact JSON.
func cellValue(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.Null:
		return "", false
	case gjson.String:
		return v.Str, true
	case gjson.True, gjson.False:
		return strconv.FormatBool(v.Bool()), true
	case gjson.Number:
		return v.Raw, true
	case gjson.JSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
			return v.Raw, true
		}
		return buf.String(), true
	}
	return "", false
}
