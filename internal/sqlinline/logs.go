package sqlinline

// QLogAppend stores NULL for any reference that no longer resolves.
const QLogAppend = `--sql 28643fd5-104c-4dde-b5d2-ba38c0856980
insert into execution_logs (node_id, batch_id, image_id, log_level, message)
values (
    (select node_id from processing_nodes where node_id = $1::bigint),
    (select batch_id from batch_requests where batch_id = $2::bigint),
    (select image_id from images where image_id = $3::bigint),
    $4::text,
    $5::text
)
returning log_id;
`

const QLogsByBatch = `--sql 74169660-6d92-469e-9e1a-9cc8fe46168a
select log_id, node_id, batch_id, image_id, log_level, message, timestamp
from execution_logs
where batch_id = $1
order by timestamp desc, log_id desc;
`

const QLogsByImage = `--sql fe0a6cdd-2087-4686-9f39-307d42bd8814
select log_id, node_id, batch_id, image_id, log_level, message, timestamp
from execution_logs
where image_id = $1
order by timestamp desc, log_id desc;
`

const QLogsByNode = `--sql eecad637-82b7-4117-8a95-cf3f50b270bb
select log_id, node_id, batch_id, image_id, log_level, message, timestamp
from execution_logs
where node_id = $1
order by timestamp desc, log_id desc
limit $2;
`

const QLogsRecent = `--sql c53fb2f1-959e-4931-b45e-ebf93b6f2c84
select log_id, node_id, batch_id, image_id, log_level, message, timestamp
from execution_logs
order by timestamp desc, log_id desc
limit $1;
`
