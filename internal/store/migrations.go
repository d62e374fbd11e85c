package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create hosts, networks and routes",
		SQL: `
			CREATE TABLE hosts (
				name        TEXT PRIMARY KEY,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE networks (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				host        TEXT NOT NULL REFERENCES hosts(name) ON DELETE CASCADE,
				network     TEXT NOT NULL,
				gateway     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_networks_cidr ON networks (network);
			CREATE INDEX idx_networks_host ON networks (host);

			CREATE TABLE routes (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				network_id  INTEGER NOT NULL REFERENCES networks(id) ON DELETE CASCADE,
				destination TEXT NOT NULL,
				gateway     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_routes_network ON routes (network_id, id);
		`,
	},
}
