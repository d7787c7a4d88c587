package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/storage"
)

type StorageConfig struct {
	Scenes       AssetConfig[*scene.Document] `json:"scenes"`
	StartupScene string                       `json:"startup_scene"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()
	if c.Scenes.Path != "" {
		el.Add(c.Scenes.Validate("scenes"))
	}
	return el.Err()
}

// BuildSceneStore returns nil when no scene path is configured.
func (c *StorageConfig) BuildSceneStore() (*storage.FileStore[*scene.Document], error) {
	if c.Scenes.Path == "" {
		return nil, nil
	}
	return c.Scenes.BuildFileStore()
}

type AssetConfig[T storage.ValidatingSpec] struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
}

func (c *AssetConfig[T]) Validate(name string) error {
	el := errors.NewErrorList()

	if c.Path == "" {
		el.Add(fmt.Errorf("%s: path is required", name))
	} else if _, err := os.Stat(c.Path); err != nil {
		el.Add(fmt.Errorf("%s: invalid path %q: %w", name, c.Path, err))
	}
	if c.Extension != "" && !storage.Supported("record"+c.Extension) {
		el.Add(fmt.Errorf("%s: unsupported extension %q", name, c.Extension))
	}

	return el.Err()
}

func (c *AssetConfig[T]) BuildFileStore() (*storage.FileStore[T], error) {
	var opts []storage.FileStoreOpt
	if c.Extension != "" {
		opts = append(opts, storage.WithExtension(c.Extension))
	}
	return storage.NewFileStore[T](c.Path, opts...)
}
