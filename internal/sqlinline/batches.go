package sqlinline

const QBatchCreate = `--sql 8ed97869-9b16-4b0c-837a-ad2541db0265
insert into batch_requests (user_id, batch_name, output_format, compression_type)
values ($1::bigint, $2::text, $3::text, $4::text)
returning batch_id, user_id, batch_name, status, total_images, processed_images,
          output_format, compression_type, created_at, started_at, completed_at;
`

const QBatchGet = `--sql 95831dcc-6e9f-4cc7-9c33-cfec80658e2e
select batch_id, user_id, batch_name, status, total_images, processed_images,
       output_format, compression_type, created_at, started_at, completed_at
from batch_requests
where batch_id = $1;
`

const QBatchListByUser = `--sql 03ec9de1-73a3-4ac1-99e4-6af423fb7db5
select batch_id, user_id, batch_name, status, total_images, processed_images,
       output_format, compression_type, created_at, started_at, completed_at
from batch_requests
where user_id = $1
order by created_at desc, batch_id desc;
`

// QBatchApplyStatus writes a partial update. $2..$5 are nullable; $6 lists the
// statuses the row may currently hold for the status change to apply.
// started_at and completed_at are stamped once unless given explicitly.
const QBatchApplyStatus = `--sql 4eb4eeb9-f76b-414a-8563-e36d65ca47a1
update batch_requests b
set status = coalesce($2::text, b.status),
    processed_images = case
        when $3::int is null then b.processed_images
        else greatest(b.processed_images, $3::int)
    end,
    started_at = case
        when $4::timestamptz is not null then $4::timestamptz
        when $2::text = 'processing' and b.started_at is null then now()
        else b.started_at
    end,
    completed_at = case
        when $5::timestamptz is not null then $5::timestamptz
        when $2::text in ('completed', 'failed') and b.completed_at is null then now()
        else b.completed_at
    end
where b.batch_id = $1
  and ($2::text is null or b.status = any($6::text[]))
returning b.batch_id, b.user_id, b.batch_name, b.status, b.total_images, b.processed_images,
          b.output_format, b.compression_type, b.created_at, b.started_at, b.completed_at;
`

const QBatchLockForUpdate = `--sql 630c915e-706c-48a9-93c6-de90dbd32c92
select batch_id
from batch_requests
where batch_id = $1
for update;
`

const QBatchBumpTotal = `--sql 9ec5a3d5-59c8-418e-957e-d9f4f95b3f17
update batch_requests
set total_images = total_images + $2::int
where batch_id = $1;
`

// QBatchIncrementProcessed counts an image at most once, and never beyond total_images.
// $2 is the result just inserted, excluded from the already-counted check.
const QBatchIncrementProcessed = `--sql 9f3e7b82-dd50-4860-88dc-6fbab82a092e
update batch_requests b
set processed_images = b.processed_images + 1
from images i
where i.image_id = $1
  and b.batch_id = i.batch_id
  and b.processed_images < b.total_images
  and not exists (
      select 1
      from processed_results pr
      where pr.image_id = $1
        and pr.status = 'success'
        and pr.result_id <> $2
  );
`
