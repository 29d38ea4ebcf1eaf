package puzzle

var domainsQuery = `
query Domains {
  domains {
    id
    name
  }
}
`

var loginMutation = `
mutation Login($domainId: Int!, $username: String!, $password: String!) {
  login(domainId: $domainId, username: $username, password: $password) {
    id
    username
  }
}
`

var projectsQuery = `
query Projects {
  projects {
    id
    title
    doneAt
  }
}
`

var productDescendantsQuery = `
query ProductDescendants($projectId: ID!, $parentIds: [ID!]!, $depth: Int!) {
  productDescendants(projectId: $projectId, parentIds: $parentIds, depth: $depth) {
    id
    parentId
    code
    kind
    status
    dueDate
    estimation
    deliverable
    tags
    thumbnail {
      name
      url
    }
  }
}
`

var productCreateMutation = `
mutation ProductCreate($input: ProductAdd!) {
  productCreate(input: $input) {
    id
  }
}
`

var productsUpdateMutation = `
mutation ProductsUpdate($projectId: ID!, $productIds: [ID!]!, $change: ProductChange!) {
  productsUpdate(projectId: $projectId, productIds: $productIds, change: $change) {
    id
  }
}
`
