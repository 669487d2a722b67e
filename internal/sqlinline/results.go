package sqlinline

// QResultInsert is a no-op for a replayed (image, node, attempt); the caller
// then reads the existing row with QResultByAttempt.
const QResultInsert = `--sql e0c90ba6-f5a5-4354-a27f-83b2abf9ed02
insert into processed_results (
    image_id, node_id, attempt, result_filename, storage_path, file_size, width, height,
    format, processing_time_ms, status, error_message
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
on conflict on constraint processed_results_attempt_key do nothing
returning result_id;
`

const QResultByAttempt = `--sql 288b58c7-0195-41e5-adf8-7aab2e3fac4d
select result_id
from processed_results
where image_id = $1 and node_id = $2 and attempt = $3;
`

const QResultRows = `--sql fda3595e-f09d-4b10-841c-fefc8b494038
select i.image_id, i.original_filename, pr.result_filename, pr.storage_path, pr.status,
       pr.processing_time_ms, pr.node_id
from images i
join processed_results pr on pr.image_id = i.image_id
where i.batch_id = $1
  and (not $2::bool or pr.status = 'success')
order by i.image_id, pr.result_id;
`

const QResultNodeBreakdown = `--sql e710c352-5268-4ecc-9a9a-d204417290e9
select n.node_id,
       n.node_name,
       count(*)::int as results,
       (count(*) filter (where pr.status = 'success'))::int as successful,
       coalesce(avg(pr.processing_time_ms), 0)::float8 as avg_processing_time_ms
from processed_results pr
join images i on i.image_id = pr.image_id
join processing_nodes n on n.node_id = pr.node_id
where i.batch_id = $1
group by n.node_id, n.node_name
order by n.node_id;
`
