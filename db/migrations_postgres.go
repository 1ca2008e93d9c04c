package db

// PostgreSQL-specific migrations for the article store

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_articles_table",
		Up: `
			CREATE TABLE IF NOT EXISTS articles (
				id BIGSERIAL PRIMARY KEY,
				slug TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				body TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'draft',
				published_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW(),
				CONSTRAINT articles_status_check CHECK (status IN ('draft', 'published'))
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
