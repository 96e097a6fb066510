package domain

// RoleStaff is the JWT role allowed on the admin API.
const RoleStaff = "staff"
