package sqlinline

// QNodeHeartbeat creates the node on first contact or merges supplied
// attributes; NULL parameters keep stored values. last_heartbeat never moves back.
const QNodeHeartbeat = `--sql 5900d4b0-7ee4-4af0-a34f-c09bab79810c
insert into processing_nodes as n (
    node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, current_load, last_heartbeat
)
values (
    $1::bigint,
    'Node-' || ($1::bigint)::text,
    coalesce($2::text, 'localhost'),
    coalesce($3::int, (50050 + $1::bigint)::int),
    'active',
    $4::int,
    $5::float8,
    coalesce($6::int, 0),
    $7::timestamptz
)
on conflict (node_id) do update set
    status = 'active',
    last_heartbeat = greatest(n.last_heartbeat, excluded.last_heartbeat),
    ip_address = coalesce($2::text, n.ip_address),
    port = coalesce($3::int, n.port),
    cpu_cores = coalesce($4::int, n.cpu_cores),
    ram_gb = coalesce($5::float8, n.ram_gb),
    current_load = coalesce($6::int, n.current_load),
    updated_at = now()
returning (xmax = 0) as inserted;
`

// QNodeSyncSequence keeps generated ids ahead of ids chosen by nodes themselves.
const QNodeSyncSequence = `--sql ff49ce28-0710-42b6-90d1-6968f2018ffe
select setval(
    pg_get_serial_sequence('processing_nodes', 'node_id'),
    greatest((select max(node_id) from processing_nodes), 1)
);
`

const QNodeRegister = `--sql f0c58667-58df-4b23-a7bc-77c6116d27b3
insert into processing_nodes (
    node_name, ip_address, port, status, cpu_cores, ram_gb, max_concurrent_jobs, weight, last_heartbeat
)
values ($1, $2, $3, 'active', $4, $5, $6, $7, now())
returning node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, current_load,
          max_concurrent_jobs, weight, last_heartbeat, created_at, updated_at;
`

const QNodeRegisterWithID = `--sql dd0609b8-7e97-444c-a97b-8b84488c27bb
insert into processing_nodes as n (
    node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, max_concurrent_jobs, weight, last_heartbeat
)
values ($1, $2, $3, $4, 'active', $5, $6, $7, $8, now())
on conflict (node_id) do update set
    node_name = excluded.node_name,
    ip_address = excluded.ip_address,
    port = excluded.port,
    status = 'active',
    cpu_cores = coalesce(excluded.cpu_cores, n.cpu_cores),
    ram_gb = coalesce(excluded.ram_gb, n.ram_gb),
    max_concurrent_jobs = excluded.max_concurrent_jobs,
    weight = excluded.weight,
    last_heartbeat = greatest(n.last_heartbeat, excluded.last_heartbeat),
    updated_at = now()
returning node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, current_load,
          max_concurrent_jobs, weight, last_heartbeat, created_at, updated_at;
`

const QNodeGet = `--sql c44d9a5d-dc50-4115-9897-2b78fbd9127f
select node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, current_load,
       max_concurrent_jobs, weight, last_heartbeat, created_at, updated_at
from processing_nodes
where node_id = $1;
`

const QNodeExists = `--sql b5685d05-8a0e-4ae8-9c9d-069a64bf43f6
select exists (select 1 from processing_nodes where node_id = $1);
`

const QNodeList = `--sql a8a1a246-ad18-4a38-b308-4ee14fa2a2fc
select node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, current_load,
       max_concurrent_jobs, weight, last_heartbeat, created_at, updated_at
from processing_nodes
order by node_id;
`

const QNodeListActive = `--sql 24461e06-598a-4cbf-8fc2-284a1fc1b67c
select node_id, node_name, ip_address, port, status, cpu_cores, ram_gb, current_load,
       max_concurrent_jobs, weight, last_heartbeat, created_at, updated_at
from processing_nodes
where status = 'active'
  and last_heartbeat >= $1::timestamptz;
`

const QNodeDemoteStale = `--sql f4b4d844-42d5-4b4b-b970-2474fba36d85
update processing_nodes
set status = 'inactive',
    updated_at = now()
where status = 'active'
  and (last_heartbeat is null or last_heartbeat < $1::timestamptz)
returning node_id;
`

const QNodeResultCounts = `--sql ebebe720-e0d1-408a-8fb3-8a0c66d18460
select node_id,
       count(*)::int as total,
       (count(*) filter (where status = 'failure'))::int as failed
from processed_results
where node_id is not null
group by node_id;
`
