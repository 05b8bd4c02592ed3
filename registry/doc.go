// Package registry binds logical database names to storages.
//
// A Registry is constructed empty and bound from a Config, usually loaded
// from YAML with LoadConfig. Each configured name gets its own
// photo.PhotoStorage: names listed in remote_names are kept in the remote
// bucket under the key prefix "<name>/", every other name lives in
// storage_directory/<name> on the local filesystem.
//
// Lifecycle:
//
//	reg := registry.New(log)
//	_, err := reg.Get("photos")   // ErrNotInitialized
//	err = reg.Bind(cfg)
//	photos, err := reg.Get("photos")
//	_, err = reg.Get("missing")   // ErrUnknownDatabase
//	err = reg.Clean(ctx)          // local databases are wiped, remote ones untouched
//	reg.Unbind()
//
// The registry is safe for concurrent use. The storages it hands out follow
// the concurrency rules of interfaces.Storage.
package registry
