package sqlinline

const QTransformationListActive = `--sql 1b1a6224-1a58-42e9-846e-c6e6a84b512d
select transformation_id, name, version, description, parameters_schema, is_active, created_at
from transformations
where is_active
order by name;
`

const QTransformationGet = `--sql 3f4e30ac-4e0f-420b-9e33-89075eb5ed17
select transformation_id, name, version, description, parameters_schema, is_active, created_at
from transformations
where transformation_id = $1;
`

const QTransformationActiveByName = `--sql 277ac5b9-3141-48b2-bab0-92554e231f84
select transformation_id, name, version, description, parameters_schema, is_active, created_at
from transformations
where is_active
  and lower(name) = lower($1::text);
`

// QTransformationsResolve maps folded names to active catalog ids in one round trip.
const QTransformationsResolve = `--sql 455e6d16-5577-45b8-ba8a-846bb199e534
select lower(name), transformation_id
from transformations
where is_active
  and lower(name) = any($1::text[]);
`

// QTransformationUpsert leaves referenced entries untouched and then returns no row.
const QTransformationUpsert = `--sql 8736a60b-37c8-45a8-a665-ac14545a45a7
insert into transformations as t (name, version, description, parameters_schema, is_active)
values ($1, $2, $3, $4::jsonb, $5)
on conflict (name, version) do update set
    description = excluded.description,
    parameters_schema = excluded.parameters_schema,
    is_active = excluded.is_active
where not exists (
    select 1 from image_transformations it where it.transformation_id = t.transformation_id
)
returning transformation_id, name, version, description, parameters_schema, is_active, created_at;
`
