package sqlinline

const QUserCreate = `--sql 5149eb1a-10bb-4307-9b2e-a3367897e8b6
insert into users (username, email, password_hash, first_name, last_name)
values ($1, $2, $3, $4, $5)
returning user_id, username, email, password_hash, first_name, last_name, is_active,
          created_at, last_login;
`

const QUserByUsername = `--sql 20695874-5f32-4773-aac1-17b6ee3b23b6
select user_id, username, email, password_hash, first_name, last_name, is_active,
       created_at, last_login
from users
where username = $1;
`

const QUserByID = `--sql 21f65058-0cd2-494b-8446-d7a7a775e7aa
select user_id, username, email, password_hash, first_name, last_name, is_active,
       created_at, last_login
from users
where user_id = $1;
`

const QUserTouchLogin = `--sql 2063de7b-1be9-427a-bc34-b4611de8535e
update users
set last_login = now()
where user_id = $1;
`

const QSessionCreate = `--sql fb29990b-b5e6-49dc-82e1-c5aeb18c231f
insert into user_sessions (token_id, user_id, expires_at)
values ($1, $2, $3);
`

const QSessionGet = `--sql 02d8aca8-8b77-4093-84b8-c8a30f500df1
select token_id, user_id, expires_at, revoked_at
from user_sessions
where token_id = $1;
`

const QSessionRevoke = `--sql dd7d7f69-dfe9-4922-9ba1-2f878d22321a
update user_sessions
set revoked_at = now()
where token_id = $1
  and revoked_at is null;
`
