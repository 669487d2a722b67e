package sqlinline

const QImageInsert = `--sql bf4f5461-8fdd-4496-aa56-fa3ec76db17e
insert into images (batch_id, original_filename, storage_path, file_size, width, height, format)
values ($1, $2, $3, $4, $5, $6, $7)
returning image_id;
`

const QImageGet = `--sql 920783ed-8fd6-4fe7-93c2-e33ef9ac5d58
select image_id, batch_id, original_filename, storage_path, file_size, width, height, format,
       created_at, processed_at
from images
where image_id = $1;
`

// QImageLockForResult holds the image row until the recording transaction
// ends, so two results for one image are counted one after the other.
const QImageLockForResult = `--sql d443e0fc-0308-431b-8e00-ae549613d25c
select batch_id
from images
where image_id = $1
for update;
`

const QImageBatchID = `--sql 606eaa82-5e9b-4cba-84be-944b4b91a930
select batch_id
from images
where image_id = $1;
`

// QImagesByBatch returns every image of a batch with its latest result, if any.
const QImagesByBatch = `--sql bae7eeda-6452-4be5-8352-f794b7c05242
select i.image_id, i.batch_id, i.original_filename, i.storage_path, i.file_size, i.width, i.height,
       i.format, i.created_at, i.processed_at,
       r.result_id, r.node_id, r.attempt, r.result_filename, r.storage_path, r.file_size,
       r.width, r.height, r.format, r.processing_time_ms, r.status, r.error_message, r.created_at
from images i
left join lateral (
    select *
    from processed_results pr
    where pr.image_id = i.image_id
    order by pr.created_at desc, pr.result_id desc
    limit 1
) r on true
where i.batch_id = $1
order by i.image_id;
`

const QImageMarkProcessed = `--sql 5648625f-d416-4556-9c4a-0ed6b23e5da9
update images
set processed_at = coalesce(processed_at, now())
where image_id = $1;
`

const QImageTransformationInsert = `--sql 76893484-22f3-4e7c-a62d-11934c312e0b
insert into image_transformations (image_id, transformation_id, parameters, execution_order)
values ($1, $2, $3::jsonb, $4)
returning id, status, created_at;
`

const QImageTransformationsByImage = `--sql a1f16ef4-8f57-4a87-948e-904b4e30e5d7
select it.id, it.image_id, it.transformation_id, t.name, it.parameters, it.execution_order,
       it.status, it.created_at
from image_transformations it
join transformations t on t.transformation_id = it.transformation_id
where it.image_id = $1
order by it.execution_order, it.id;
`

const QImageTransformationsByBatch = `--sql 5134301f-cb95-467e-867c-368e2f96e5e5
select it.id, it.image_id, it.transformation_id, t.name, it.parameters, it.execution_order,
       it.status, it.created_at
from image_transformations it
join transformations t on t.transformation_id = it.transformation_id
join images i on i.image_id = it.image_id
where i.batch_id = $1
order by it.image_id, it.execution_order, it.id;
`
