package api

import (
	"bytes"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"isoserve/logger"
)

const defaultContentType = "application/octet-stream"

// indexFiles are served in place of a listing when present in a directory.
var indexFiles = []string{"index.html", "index.htm"}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE HTML>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Directory listing for {{.Path}}</title>
</head>
<body>
<h1>Directory listing for {{.Path}}</h1>
<hr>
<ul>
{{range .Entries}}<li><a href="{{.Href}}">{{.Name}}</a></li>
{{end}}</ul>
<hr>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
}

type listing struct {
	Path    string
	Entries []listingEntry
}

// FileHandler serves a read-only file tree. Request paths are cleaned and
// mapped to fs.FS names, so nothing outside the tree is reachable.
type FileHandler struct {
	fsys fs.FS
	log  *logger.Logger
}

// NewFileHandler creates a handler serving fsys.
func NewFileHandler(fsys fs.FS, log *logger.Logger) *FileHandler {
	return &FileHandler{fsys: fsys, log: log}
}

// fsName converts a URL path into an fs.FS name. "/" maps to ".".
func fsName(urlPath string) (string, bool) {
	cleaned := path.Clean("/" + urlPath)
	name := strings.TrimPrefix(cleaned, "/")
	if name == "" {
		name = "."
	}
	return name, fs.ValidPath(name)
}

// ContentType guesses the MIME type from the file extension.
func ContentType(name string) string {
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		return ctype
	}
	return defaultContentType
}

func (h *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}

	name, ok := fsName(upath)
	if !ok {
		SendNotFound(w, upath)
		return
	}

	info, err := fs.Stat(h.fsys, name)
	if err != nil {
		h.sendFSError(w, r, upath, err)
		return
	}

	if !info.IsDir() {
		h.serveFile(w, r, name, info)
		return
	}

	if !strings.HasSuffix(upath, "/") {
		target := r.URL.EscapedPath() + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	for _, index := range indexFiles {
		indexName := path.Join(name, index)
		indexInfo, err := fs.Stat(h.fsys, indexName)
		if err == nil && indexInfo.Mode().IsRegular() {
			h.serveFile(w, r, indexName, indexInfo)
			return
		}
	}

	h.serveListing(w, r, upath, name)
}

func (h *FileHandler) serveFile(w http.ResponseWriter, r *http.Request, name string, info fs.FileInfo) {
	f, err := h.fsys.Open(name)
	if err != nil {
		h.sendFSError(w, r, r.URL.Path, err)
		return
	}
	defer f.Close()

	content, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			h.sendFSError(w, r, r.URL.Path, err)
			return
		}
		content = bytes.NewReader(data)
	}

	w.Header().Set("Content-Type", ContentType(name))
	http.ServeContent(w, r, path.Base(name), info.ModTime(), content)
}

func (h *FileHandler) serveListing(w http.ResponseWriter, r *http.Request, upath, name string) {
	entries, err := fs.ReadDir(h.fsys, name)
	if err != nil {
		h.sendFSError(w, r, upath, err)
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	page := listing{Path: upath, Entries: make([]listingEntry, 0, len(entries))}
	for _, entry := range entries {
		display, link := entry.Name(), entry.Name()
		isDir := entry.IsDir()
		symlink := entry.Type()&fs.ModeSymlink != 0
		if symlink {
			// a link to a directory is linked like one
			if target, err := fs.Stat(h.fsys, path.Join(name, entry.Name())); err == nil {
				isDir = target.IsDir()
			}
		}
		if isDir {
			display += "/"
			link += "/"
		}
		if symlink {
			display = entry.Name() + "@"
		}
		// url.URL escapes the name and guards against a leading colon being read as a scheme
		href := url.URL{Path: link}
		page.Entries = append(page.Entries, listingEntry{Name: display, Href: href.String()})
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, page); err != nil {
		h.log.WithContext(r.Context()).Error("Failed to render directory listing", map[string]interface{}{
			"error": err.Error(),
			"path":  upath,
		})
		SendInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}
}

func (h *FileHandler) sendFSError(w http.ResponseWriter, r *http.Request, upath string, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR), errors.Is(err, fs.ErrInvalid):
		SendNotFound(w, upath)
	case errors.Is(err, fs.ErrPermission):
		SendForbidden(w, upath)
	default:
		h.log.WithContext(r.Context()).Error("Failed to read from root", map[string]interface{}{
			"error": err.Error(),
			"path":  upath,
		})
		SendInternalServerError(w)
	}
}
