package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "userName", PropertyName("user_name"))
	assert.Equal(t, "id", PropertyName("id"))
	assert.Equal(t, "createdAt", PropertyName("created_at"))
}

func TestToOnePropertyName(t *testing.T) {
	assert.Equal(t, "author", ToOnePropertyName("author_id"))
	assert.Equal(t, "createdByUser", ToOnePropertyName("created_by_user_id"))
	assert.Equal(t, "owner", ToOnePropertyName("owner_fk"))
	assert.Equal(t, "parent", ToOnePropertyName("parent"))
}

func TestToManyPropertyName(t *testing.T) {
	assert.Equal(t, "comments", ToManyPropertyName("comments", "post_id", true))
	assert.Equal(t, "authorPosts", ToManyPropertyName("posts", "author_id", false))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "UserProfile", TypeName("user_profiles"))
	assert.Equal(t, "Post", TypeName("posts"))
}

func TestPluralizeSingularize(t *testing.T) {
	assert.Equal(t, "posts", Pluralize("post"))
	assert.Equal(t, "post", Singularize("posts"))
}
