// Package schema owns the relational schema of the control plane.
package schema

import (
	"context"

	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
)

// migrations are applied in order; each entry is one schema version.
var migrations = []string{
	`
	create table if not exists "user" (
		"user_id"    varchar(64) primary key,
		"email"      varchar(256) not null default '',
		"disk_usage" bigint not null default 0
	);

	create table if not exists "run" (
		"run_id"              uuid primary key,
		"owner"               varchar(64) not null references "user" ("user_id"),
		"name"                varchar(128) not null,
		"number"              integer not null,
		"status"              varchar(16) not null,
		"spec"                jsonb not null,
		"git_ref"             varchar(256) not null default '',
		"input_parameters"    jsonb not null default '{}',
		"operational_options" jsonb not null default '{}',
		"progress"            jsonb not null default '{}',
		"logs"                text not null default '',
		"workspace"           text not null,
		"workspace_removed"   boolean not null default false,
		"disk_usage"          bigint not null default 0,
		"created_at"          timestamp with time zone not null default now(),
		"started_at"          timestamp with time zone,
		"finished_at"         timestamp with time zone,
		"stopped_at"          timestamp with time zone,
		constraint "run_owner_name_number" unique ("owner", "name", "number")
	);
	create index if not exists "run_owner" on "run" ("owner");

	create table if not exists "run_share" (
		"run_id"      uuid not null references "run" ("run_id") on delete cascade,
		"user_id"     varchar(64) not null references "user" ("user_id"),
		"message"     text not null default '',
		"valid_until" timestamp with time zone,
		primary key ("run_id", "user_id")
	);

	create table if not exists "job" (
		"job_id"         uuid primary key,
		"run_id"         uuid not null references "run" ("run_id") on delete cascade,
		"status"         varchar(16) not null,
		"backend_job_id" varchar(253) not null default '',
		"name"           varchar(253) not null default '',
		"image"          text not null default '',
		"command"        text not null default '',
		"logs"           text not null default '',
		"created_at"     timestamp with time zone not null default now(),
		"started_at"     timestamp with time zone,
		"finished_at"    timestamp with time zone
	);
	create index if not exists "job_run" on "job" ("run_id");

	create table if not exists "job_cache" (
		"job_id"                 uuid primary key references "job" ("job_id") on delete cascade,
		"parameters_fingerprint" varchar(64) not null default '',
		"workspace_fingerprint"  varchar(64) not null default '',
		"result_path"            text not null default ''
	);

	create table if not exists "service" (
		"run_id" uuid not null references "run" ("run_id") on delete cascade,
		"name"   varchar(253) not null,
		"kind"   varchar(32) not null,
		"status" varchar(16) not null,
		primary key ("run_id", "name")
	);

	create table if not exists "session" (
		"session_id" uuid primary key,
		"run_id"     uuid not null references "run" ("run_id") on delete cascade,
		"name"       varchar(253) not null,
		"kind"       varchar(32) not null,
		"path"       text not null,
		"status"     varchar(16) not null
	);
	`,
}

// Version returns the current schema version, zero for a fresh
// database.
func Version(ctx context.Context, pool kpool.Pool) (int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`create table if not exists "schema_version" ("version" integer not null)`,
	); err != nil {
		return 0, err
	}

	version := 0
	if err := tx.QueryRow(
		ctx, `select coalesce(max("version"), 0) from "schema_version"`,
	).Scan(&version); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return version, nil
}

// Upgrade applies every migration newer than the stored version, each
// in its own transaction.
func Upgrade(ctx context.Context, pool kpool.Pool) error {
	version, err := Version(ctx, pool)
	if err != nil {
		return err
	}

	for next := version; next < len(migrations); next++ {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, migrations[next]); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`delete from "schema_version"`,
		); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`insert into "schema_version" ("version") values ($1)`,
			next+1,
		); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
