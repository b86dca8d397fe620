// Package config provides layered, INI-backed application settings.
//
// Each named configuration owns two files in its directory: a default file
// that is never written for user edits, and a custom file that holds the
// user's changes. Reads prefer the custom value and fall back to the
// default one.
//
// # Layers
//
//	┌──────────────────────────────┐
//	│  Config (facade)             │  ← the only API callers need
//	├──────────────┬───────────────┤
//	│  dynstore    │  handler      │  ← live values, type conversion
//	├──────────────┴───────────────┤
//	│  filestore                   │  ← default + custom INI documents
//	└──────────────────────────────┘
//
// # Sub-packages
//
//   - filestore: default/custom INI documents, reset and atomic saves
//   - dynstore: in-memory live values, unaware of files
//   - handler: string conversion per declared type
//   - notify: change notification and observer pattern
//   - loader: default values from TOML and YAML files
//   - watcher: reload of custom files edited outside the process
//
// # Basic Usage
//
//	cfg := config.New()
//	defer cfg.Close()
//
//	err := cfg.AddConfig("app", config.PathConfig{
//		Dir:      dir,
//		Defaults: filestore.Static(map[string]map[string]string{"Window": {"width": "800"}}),
//	})
//
//	width := config.NewKey("app", "width",
//		config.WithSection("Window"),
//		config.TypeOf[int](),
//		config.SaveToFile(),
//	)
//	v, err := cfg.AddVariable(width, config.WithValue(800))
//
//	err = cfg.SetVariable(width, 1024) // custom-config.ini now has width = 1024
//
// # Saving
//
// A file-backed variable always updates the custom document. Keys with
// AutoSave (the default) also write the custom file at once; the others
// leave the document dirty until SaveCustomConfigToFile or the next
// auto-saved write.
//
// # Change Notification
//
// Subscribe to a single variable or to paths of the form
// "config/section/name":
//
//	sub := cfg.SubscribePath("app/Window", func(c notify.Change) {
//		log.Printf("%s: %v -> %v", c.Path, c.OldValue, c.NewValue)
//	})
//	defer sub.Unsubscribe()
//
// Observers run synchronously after every lock is released, so they may
// call back into the Config.
package config
