package resources

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/byte4ever/devkit/templating"
)

const (
	// SharedNamespace holds the files dispatched to every
	// repository.
	SharedNamespace = "shared"

	// DevKitNamespace holds the templates of the dispatcher
	// itself, such as the pull request description.
	DevKitNamespace = "dev-kit"

	// PullRequestTemplate is the logical name of the pull
	// request template. It defines a "title" and a "body"
	// block.
	PullRequestTemplate = "@" + DevKitNamespace + "/pull_request.md"
)

//go:embed all:templates
var embedded embed.FS

// namespaces maps template directories to namespaces.
var namespaces = []struct{ dir, ns string }{
	{dir: "shared_files", ns: SharedNamespace},
	{dir: "dev-kit", ns: DevKitNamespace},
}

// FS returns the embedded template tree.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err) // the embedded tree always has this root
	}

	return sub
}

// NewLoader returns a loader with the shared and dev-kit
// namespaces registered. With an empty dir the embedded
// templates are used; otherwise dir must hold the
// "shared_files" and "dev-kit" directories.
func NewLoader(dir string) (*templating.Loader, error) {
	const errCtx = "loading templates"

	fsys := FS()
	if dir != "" {
		fsys = os.DirFS(dir)
	}

	loader := templating.NewLoader(fsys)

	for _, n := range namespaces {
		if err := loader.AddPath(n.dir, n.ns); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return loader, nil
}
