package sqlinline

const QMigrationsEnsureTable = `--sql a6c4e58d-8955-4d16-b76e-1785343147c4
create table if not exists schema_migrations (
    version    text primary key,
    applied_at timestamptz not null default now()
);
`

const QMigrationApplied = `--sql 43f18a03-d4bc-4b73-b874-d16fc75782da
select exists (select 1 from schema_migrations where version = $1);
`

const QMigrationRecord = `--sql 3837d5c2-3ec0-468e-98ea-e47e9aaba895
insert into schema_migrations (version) values ($1);
`
