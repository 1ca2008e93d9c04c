package db

// SQLite migrations for the article store.
// DATETIME columns keep modernc.org/sqlite scanning them into time.Time.

var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_articles_table",
		Up: `
			CREATE TABLE IF NOT EXISTS articles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				body TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published')),
				published_at DATETIME,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_articles_status_published_at ON articles(status, published_at DESC);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_articles_status_published_at;
			DROP TABLE IF EXISTS articles;
		`,
	},
	{
		Version: 2,
		Name:    "add_articles_lower_title_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_articles_lower_title ON articles(LOWER(title));
		`,
		Down: `
			DROP INDEX IF EXISTS idx_articles_lower_title;
		`,
	},
}
